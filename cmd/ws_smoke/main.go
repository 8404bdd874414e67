package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Plays the opening of a two-player game against a running server.
func main() {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	wsURL := fmt.Sprintf("ws://127.0.0.1:%s/ws", port)
	dialer := websocket.DefaultDialer

	connA, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial A: %v", err)
	}
	defer connA.Close()

	connB, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	send(connA, "GAME_CREATE", map[string]any{"hostName": "smokeA"})
	created := await(connA, "NEW_GAME")
	var lobby struct {
		LobbyID string `json:"lobbyId"`
	}
	if err := json.Unmarshal(created.Data, &lobby); err != nil {
		log.Fatalf("decode NEW_GAME: %v", err)
	}
	log.Printf("lobby %s created", lobby.LobbyID)

	send(connB, "REQUEST_JOIN", map[string]any{"lobbyId": lobby.LobbyID, "name": "smokeB"})
	await(connB, "JOIN_GAME")
	await(connA, "NEW_PLAYER")

	send(connA, "GAME_START", nil)
	await(connB, "GAME_START")
	await(connA, "NEXT_TURN")

	send(connA, "REQUEST_ROLL", nil)
	pos := await(connB, "SET_POSITION")
	log.Printf("A moved: %s", pos.Data)

	send(connA, "LEAVE_GAME", nil)
	over := await(connB, "GAME_OVER")
	log.Printf("game over: %s", over.Data)

	log.Println("smoke test OK")
}

func send(c *websocket.Conn, kind string, data any) {
	if err := c.WriteJSON(map[string]any{"type": kind, "data": data}); err != nil {
		log.Fatalf("write %s: %v", kind, err)
	}
}

// await reads until a frame of the wanted type arrives. Any other frame is
// logged; an ERROR frame while waiting is fatal.
func await(c *websocket.Conn, kind string) frame {
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := c.ReadJSON(&f); err != nil {
			log.Fatalf("waiting for %s: %v", kind, err)
		}
		if f.Type == kind {
			return f
		}
		if f.Type == "ERROR" {
			log.Fatalf("waiting for %s: server error %s", kind, f.Data)
		}
	}
}
