package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"factorycraft.ai/internal/protocol"
	"factorycraft.ai/internal/sim/factory/geom"
	"factorycraft.ai/internal/sim/factory/state"
)

// bot is a scripted client: it submits a layout file, then logs state
// changes and periodically queries what sits near a point.
func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "client name")
		layoutPath = flag.String("layout", "", "LAYOUT json file to submit after WELCOME (optional)")
		query      = flag.String("query", "", "x,y,radius to QUERY_NEARBY every -query_every (optional)")
		queryEvery = flag.Duration("query_every", 5*time.Second, "QUERY_NEARBY interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	var layout []byte
	if *layoutPath != "" {
		raw, err := loadLayout(*layoutPath)
		if err != nil {
			logger.Fatalf("layout: %v", err)
		}
		layout = raw
	}
	var q *protocol.QueryNearbyMsg
	if *query != "" {
		m, err := parseQuery(*query)
		if err != nil {
			logger.Fatalf("query: %v", err)
		}
		q = &m
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	if q != nil {
		go func() {
			t := time.NewTicker(*queryEvery)
			defer t.Stop()
			for n := 1; ; n++ {
				<-t.C
				q.ReqID = fmt.Sprintf("q_%d", n)
				if err := conn.WriteJSON(q); err != nil {
					return
				}
			}
		}()
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s tick=%d tick_rate=%d buildings=%d", w.SessionID, w.Tick, w.TickRateHz, len(w.State.Buildings))
			if layout != nil {
				if err := conn.WriteMessage(websocket.TextMessage, layout); err != nil {
					logger.Fatalf("send LAYOUT: %v", err)
				}
			}

		case protocol.TypeStateChange:
			var m protocol.StateChangeMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			logChange(logger, m.Change)

		case protocol.TypeNearby:
			var m protocol.NearbyMsg
			if err := json.Unmarshal(msg, &m); err == nil {
				logger.Printf("NEARBY %s: %v", m.ReqID, m.IDs)
			}

		case protocol.TypeError:
			var m protocol.ErrorMsg
			if err := json.Unmarshal(msg, &m); err == nil {
				logger.Printf("ERROR %s: %s", m.Code, m.Message)
			}
		}
	}
}

func logChange(logger *log.Logger, c state.Change) {
	switch c.Type {
	case state.BatchUpdate:
		logger.Printf("tick %d: %d buildings updated", c.Tick, len(c.Batch))
	default:
		logger.Printf("tick %d: %s %s", c.Tick, c.Type, c.BuildingID)
	}
}

// loadLayout reads a layout file, fills the envelope fields and validates it.
func loadLayout(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc["type"] = protocol.TypeLayout
	doc["protocol_version"] = protocol.Version
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateLayout(out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func parseQuery(s string) (protocol.QueryNearbyMsg, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return protocol.QueryNearbyMsg{}, fmt.Errorf("want x,y,radius, got %q", s)
	}
	var f [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return protocol.QueryNearbyMsg{}, fmt.Errorf("bad number %q", p)
		}
		f[i] = v
	}
	return protocol.QueryNearbyMsg{
		Type:            protocol.TypeQueryNearby,
		ProtocolVersion: protocol.Version,
		Position:        geom.Vec2{X: f[0], Y: f[1]},
		Radius:          f[2],
	}, nil
}
