// Command ws_smoke drives one room through its whole lifecycle against a
// running server: a creator opens a room, a member joins and follows it over
// WebSocket, scores are posted, and the creator ends the room.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/fitroom-server/internal/proto"
)

type guest struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type client struct {
	base string
	http *http.Client
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	activity := flag.String("activity", "Squats", "room activity")
	capacity := flag.Int("capacity", 4, "room capacity")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &client{base: strings.TrimRight(*base, "/"), http: &http.Client{Timeout: *timeout}}

	var creator, member guest
	if err := c.call(ctx, http.MethodPost, "/api/guest", "", map[string]string{"name": "coach"}, &creator); err != nil {
		return fmt.Errorf("creator identity: %w", err)
	}
	if err := c.call(ctx, http.MethodPost, "/api/guest", "", map[string]string{"name": "smoke"}, &member); err != nil {
		return fmt.Errorf("member identity: %w", err)
	}

	var room proto.Room
	if err := c.call(ctx, http.MethodPost, "/api/rooms", creator.Token, map[string]any{
		"capacity": *capacity,
		"activity": *activity,
	}, &room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	log.Printf("room %s created with code %s", room.ID, room.Code)

	if err := c.call(ctx, http.MethodPost, "/api/rooms/join", member.Token, map[string]any{"code": room.Code}, &room); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	log.Printf("joined, %d/%d participants", len(room.Participants), room.Capacity)

	conn, err := c.follow(ctx, room.ID, member.Token)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if err := c.call(ctx, http.MethodPost, "/api/rooms/"+room.ID+"/start", creator.Token, nil, nil); err != nil {
		return fmt.Errorf("start workout: %w", err)
	}
	payload, _ := json.Marshal(proto.ScoreData{Score: ptr(12)})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeScore, Data: payload}); err != nil {
		return fmt.Errorf("send score: %w", err)
	}
	if err := c.call(ctx, http.MethodPost, "/api/rooms/"+room.ID+"/end", creator.Token, nil, nil); err != nil {
		return fmt.Errorf("end room: %w", err)
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if outbound.Error != nil {
			return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}
		log.Printf("event %s: %s", outbound.Event, outbound.Data)
		if outbound.Event == proto.EventEnded {
			return nil
		}
	}
}

// follow opens the room stream and greets the server.
func (c *client) follow(ctx context.Context, roomID, token string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/ws?room=" + url.QueryEscape(roomID)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	hello, _ := json.Marshal(proto.HelloData{Protocol: proto.ProtocolVersion})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: hello}); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return conn, nil
}

func (c *client) call(ctx context.Context, method, path, token string, body, out any) error {
	var reader bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reader).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %d %s (%s)", method, path, resp.StatusCode, apiErr.Error, apiErr.Code)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func ptr[T any](v T) *T { return &v }
