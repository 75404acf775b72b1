package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

// Drives the full buy/sell/recompute flow against a running server:
// deposit 1000, buy 10 units @ 50 (cost 500), sell 4 @ 60 (proceeds 240),
// then check that the recomputed capital matches the stored one.
func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	userID := fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())
	today := time.Now().UTC().Format("2006-01-02")

	checkEndpoint("GET", "/health", nil, 200)

	checkEndpoint("POST", "/capital/deposit", map[string]interface{}{
		"user_id": userID, "amount": "1000", "date": today,
	}, 200)

	invID := createInvestment(userID, today, false)
	fmt.Printf("Created Investment ID: %s\n", invID)

	checkEndpoint("POST", "/investments/"+invID+"/sell", map[string]interface{}{
		"user_id": userID, "price": "60", "quantity": "4", "date": today,
	}, 200)

	summary := getJSON("/summary/" + userID)
	fmt.Printf("Summary: %v\n", summary)

	breakdown := getJSON("/capital/recompute/" + userID)
	if drift, ok := breakdown["drift"].(string); ok && drift != "0" {
		log.Fatalf("capital drifted without an interrupted write: %v", breakdown)
	}
	fmt.Printf("Breakdown: %v\n", breakdown)

	// Simulation lots must not touch capital.
	simID := createInvestment(userID, today, true)
	after := getJSON("/capital/recompute/" + userID)
	if after["stored"] != breakdown["stored"] {
		log.Fatalf("simulation changed capital: %v -> %v", breakdown["stored"], after["stored"])
	}
	checkEndpoint("DELETE", "/simulations/"+simID+"?userId="+userID, nil, 200)

	checkEndpoint("GET", "/allocation/"+userID, nil, 200)
	checkEndpoint("GET", "/cagr/"+userID, nil, 200)
	checkEndpoint("POST", "/capital/recompute/"+userID, nil, 200)
	checkEndpoint("GET", "/snapshot/"+userID, nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
}

func createInvestment(userID, date string, simulation bool) string {
	reqBody := map[string]interface{}{
		"user_id":        userID,
		"symbol":         "AAPL",
		"type":           "Stock",
		"quantity":       "10",
		"buy_price":      "50",
		"total_invested": "500",
		"purchase_date":  date,
		"simulation":     simulation,
	}
	jsonBody, _ := json.Marshal(reqBody)
	resp, err := http.Post(baseURL+"/investments", "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Fatalf("Create investment failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Create investment failed with status %d: %s", resp.StatusCode, string(body))
	}

	var res map[string]string
	json.NewDecoder(resp.Body).Decode(&res)
	return res["investment_id"]
}

func getJSON(path string) map[string]interface{} {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		log.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("GET %s failed with status %d: %s", path, resp.StatusCode, string(body))
	}
	var res map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&res)
	return res
}
