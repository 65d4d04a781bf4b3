package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"reachtracker.dev/internal/protocol"
)

// fakeServer speaks just enough of the multiworld protocol for a tracker
// session. script runs after the handshake with the received Connect.
func fakeServer(t *testing.T, refuse []string, script func(conn *websocket.Conn, connect protocol.Connect)) string {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		writeFrame(conn, protocol.RoomInfo{Cmd: protocol.CmdRoomInfo, SeedName: "seed"})

		var connect protocol.Connect
		readCmd(conn, protocol.CmdConnect, &connect)
		if len(refuse) > 0 {
			writeFrame(conn, protocol.ConnectionRefused{Cmd: protocol.CmdConnectionRefused, Errors: refuse})
			return
		}
		writeFrame(conn,
			protocol.Connected{
				Cmd:              protocol.CmdConnected,
				Team:             0,
				Slot:             2,
				MissingLocations: []int64{100, 101},
				CheckedLocations: []int64{102},
			},
			protocol.ReceivedItems{Cmd: protocol.CmdReceivedItems, Index: 0, Items: []protocol.NetworkItem{
				{Item: 1, Location: 55, Player: 1, Flags: 1},
			}},
		)
		script(conn, connect)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(conn *websocket.Conn, cmds ...any) {
	b, _ := protocol.EncodeFrame(cmds...)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// readCmd reads frames until one carries cmd, decoding it into out.
func readCmd(conn *websocket.Conn, cmd string, out any) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmds, err := protocol.DecodeFrame(frame)
		if err != nil {
			continue
		}
		for _, raw := range cmds {
			if base, _ := protocol.DecodeBase(raw); base.Cmd == cmd {
				_ = json.Unmarshal(raw, out)
				return
			}
		}
	}
}

func waitFor(t *testing.T, c *Client, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-c.Updates():
		case <-deadline:
			t.Fatalf("condition not reached; input=%+v", c.Input())
		}
	}
}

func TestClient_SessionState(t *testing.T) {
	gotConnect := make(chan protocol.Connect, 1)
	url := fakeServer(t, nil, func(conn *websocket.Conn, connect protocol.Connect) {
		gotConnect <- connect
		var get protocol.Get
		readCmd(conn, protocol.CmdGet, &get)
		hints, _ := json.Marshal([]protocol.Hint{
			{ReceivingPlayer: 1, FindingPlayer: 2, Location: 101},
			{ReceivingPlayer: 1, FindingPlayer: 2, Location: 100, Found: true, Status: protocol.HintFound},
		})
		writeFrame(conn, protocol.Retrieved{Cmd: protocol.CmdRetrieved, Keys: map[string]json.RawMessage{
			protocol.HintsKey(0, 2): hints,
			protocol.RaceModeKey:    json.RawMessage(`1`),
		}})
		writeFrame(conn,
			protocol.ReceivedItems{Cmd: protocol.CmdReceivedItems, Index: 1, Items: []protocol.NetworkItem{{Item: 2, Location: 100, Player: 2}}},
			protocol.RoomUpdate{Cmd: protocol.CmdRoomUpdate, CheckedLocations: []int64{100}},
		)
		// hold the connection open until the client goes away
		var sink protocol.Sync
		readCmd(conn, "never", &sink)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Config{URL: url, Slot: "P2", Game: "Demo", ItemsHandling: protocol.ItemsAll}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	connect := <-gotConnect
	if connect.Name != "P2" || connect.ItemsHandling != protocol.ItemsAll || connect.UUID == "" {
		t.Fatalf("connect=%+v", connect)
	}
	if len(connect.Tags) != 1 || connect.Tags[0] != "Tracker" {
		t.Fatalf("tags=%v", connect.Tags)
	}

	waitFor(t, c, func() bool {
		in := c.Input()
		return len(in.Items) == 2 && in.Checked[100] && in.RaceMode && in.Hinted[101]
	})
	in := c.Input()
	if in.Missing[100] || !in.Missing[101] {
		t.Fatalf("missing=%v", in.Missing)
	}
	if in.Hinted[100] {
		t.Fatalf("found hint still listed: %v", in.Hinted)
	}
	if in.Items[0].ItemID != 1 || in.Items[1].ItemID != 2 {
		t.Fatalf("items=%+v", in.Items)
	}
	if team, slot := c.Slot(); team != 0 || slot != 2 {
		t.Fatalf("slot=%d/%d", team, slot)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestClient_ScoutsLocalItems(t *testing.T) {
	url := fakeServer(t, nil, func(conn *websocket.Conn, connect protocol.Connect) {
		var scouts protocol.LocationScouts
		readCmd(conn, protocol.CmdLocationScouts, &scouts)
		if len(scouts.Locations) != 1 || scouts.Locations[0] != 102 {
			return
		}
		writeFrame(conn, protocol.LocationInfo{Cmd: protocol.CmdLocationInfo, Locations: []protocol.NetworkItem{
			{Item: 9, Location: 102, Player: 2, Flags: 1},
		}})
		var sink protocol.Sync
		readCmd(conn, "never", &sink)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Config{URL: url, Slot: "P2", ItemsHandling: protocol.ItemsRemote}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	go c.Run(ctx)

	waitFor(t, c, func() bool { return len(c.Input().LocalItems) == 1 })
	local := c.Input().LocalItems[0]
	if local.ItemID != 9 || local.Location != 102 {
		t.Fatalf("local=%+v", local)
	}
}

func TestClient_ResyncsOnGap(t *testing.T) {
	url := fakeServer(t, nil, func(conn *websocket.Conn, connect protocol.Connect) {
		writeFrame(conn, protocol.ReceivedItems{Cmd: protocol.CmdReceivedItems, Index: 5, Items: []protocol.NetworkItem{{Item: 3}}})
		var sync protocol.Sync
		readCmd(conn, protocol.CmdSync, &sync)
		writeFrame(conn, protocol.ReceivedItems{Cmd: protocol.CmdReceivedItems, Index: 0, Items: []protocol.NetworkItem{{Item: 1}, {Item: 3}, {Item: 4}}})
		var sink protocol.Sync
		readCmd(conn, "never", &sink)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := Dial(ctx, Config{URL: url, Slot: "P2", ItemsHandling: protocol.ItemsAll}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	go c.Run(ctx)
	waitFor(t, c, func() bool { return len(c.Input().Items) == 3 })
}

func TestDial_Refused(t *testing.T) {
	url := fakeServer(t, []string{protocol.ErrInvalidSlot}, nil)
	_, err := Dial(context.Background(), Config{URL: url, Slot: "nobody"}, nil)
	var refused *protocol.RefusedError
	if !errors.As(err, &refused) || !refused.Has(protocol.ErrInvalidSlot) {
		t.Fatalf("err=%v want InvalidSlot refusal", err)
	}
}
