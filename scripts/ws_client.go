// Package main runs a demo WebSocket client that plans a small dispatch and
// replays one drone's flight from /v1/vehicles/{id}/simulate.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func post(base, path, body string) []byte {
	resp, err := http.Post(base+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %d %s", path, resp.StatusCode, buf.String())
	}
	return buf.Bytes()
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	vid := fmt.Sprintf("demo-%d", time.Now().Unix())

	post(base, "/v1/orders", `{"orders":[
		{"location":{"x":12,"y":12},"weight":1,"priority":"high"},
		{"location":{"x":13,"y":11},"weight":1},
		{"location":{"x":8,"y":9},"weight":2,"priority":"low"}]}`)
	post(base, "/v1/vehicles", fmt.Sprintf(`{"vehicles":[{"id":%q,"capacity":5,"range":30}]}`, vid))
	res := post(base, "/v1/optimize", `{"strategy":"auto"}`)
	log.Printf("optimize: %s", res)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/vehicles/" + vid + "/simulate", RawQuery: "step=15m&pace=100ms"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("stream closed: %v", err)
			return
		}
		fmt.Printf("%s %s\n", msg.Type, msg.Data)
		if msg.Type == "complete" {
			return
		}
	}
}
