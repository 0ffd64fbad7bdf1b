package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/realtime/stomp"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// Publishes one message to a room and waits for the server to echo it back.
func main() {
	if err := run(); err != nil {
		log.Printf("stomp_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/chat/websocket", "STOMP websocket endpoint")
	user := flag.String("user", "tester", "sender name")
	room := flag.String("room", "general", "canonical room id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := stomp.New(stomp.Config{URL: *addr}, nil).Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	sub, err := conn.Subscribe(proto.RoomTopic(*room))
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	originID := utils.NewOriginID()
	body, err := json.Marshal(proto.SendBody{Sender: *user, Content: *text, OriginID: originID})
	if err != nil {
		return fmt.Errorf("marshal send body: %w", err)
	}
	if err := conn.Send(proto.SendDestination(*room), body); err != nil {
		return err
	}
	fmt.Printf("Sent %q to %s as %s\n", *text, *room, *user)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no echo: %w", ctx.Err())
		case frame, ok := <-sub.Frames():
			if !ok {
				return fmt.Errorf("subscription closed before echo")
			}
			if frame.Err != nil {
				return fmt.Errorf("read: %w", frame.Err)
			}

			var rec proto.MessageRecord
			if err := json.Unmarshal(frame.Body, &rec); err != nil {
				fmt.Printf("Raw frame: %s\n", string(frame.Body))
				continue
			}
			fmt.Printf("Message: sender=%s content=%q ts=%s\n", rec.Sender, rec.Content, rec.Timestamp.Format(time.RFC3339))

			// Servers that drop originId still echo sender and content.
			if rec.OriginID == originID || (rec.OriginID == "" && rec.Sender == *user && rec.Content == *text) {
				fmt.Println("Echo received")
				return nil
			}
		}
	}
}
