package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-core/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

type outboundFrame struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Text        string `json:"text,omitempty"`
	IsTyping    bool   `json:"is_typing,omitempty"`
}

func writeFrame(c *websocket.Conn, f outboundFrame) error {
	raw, _ := json.Marshal(f)
	return c.WriteMessage(websocket.TextMessage, raw)
}

func printEvent(e model.Event) {
	switch e.Type {
	case model.EventOnlineUsers:
		fmt.Printf("\r* online: %s\n> ", strings.Join(e.Users, ", "))
	case model.EventMessage:
		fmt.Printf("\r%s: %s\n> ", e.Message.SenderID, e.Message.Text)
	case model.EventNotification:
		fmt.Printf("\r* new message from %s\n> ", e.Notification.SenderID)
	case model.EventTyping:
		fmt.Printf("\r* %s is typing...\n> ", e.Typing.UserID)
	case model.EventPresence:
		state := "offline"
		if e.Presence.IsOnline {
			state = "online"
		}
		fmt.Printf("\r* %s went %s\n> ", e.Presence.UserID, state)
	case model.EventError:
		fmt.Printf("\r! error: %s\n> ", e.Error)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	toUser := flag.String("to", "", "user id to chat with")
	flag.Parse()

	if *toUser == "" {
		log.Fatal("-to is required")
	}

	// Sort user IDs so both sides land on the same chat id
	u1, u2 := *userID, *toUser
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	chatID := fmt.Sprintf("dm:%s:%s", u1, u2)

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	// 3. Announce identity; the session is not live until this frame
	if err := writeFrame(c, outboundFrame{Type: "identify", UserID: *userID}); err != nil {
		log.Fatal("identify:", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var e model.Event
			if err := json.Unmarshal(message, &e); err != nil {
				log.Printf("Received raw: %s", message)
				continue
			}
			printEvent(e)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and send messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				close(interrupt)
				break
			}

			var frame outboundFrame
			if text == "/typing" {
				frame = outboundFrame{Type: "typing", ChatID: chatID, RecipientID: *toUser, IsTyping: true}
			} else {
				frame = outboundFrame{Type: "send", ChatID: chatID, RecipientID: *toUser, Text: text}
			}
			if err := writeFrame(c, frame); err != nil {
				log.Println("write:", err)
				break
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
