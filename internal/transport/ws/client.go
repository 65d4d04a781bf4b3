// Package ws is the websocket session with a multiworld server. It keeps
// the slot's received items, checked and missing locations, hints and race
// mode flag, and signals the tracker whenever any of them change.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/protocol"
	"reachtracker.dev/internal/tracker"
)

type Config struct {
	URL           string
	Slot          string
	Password      string
	Game          string
	ItemsHandling int
	Tags          []string
	// UUID identifies this client to the server; a random one is used when
	// empty.
	UUID             string
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Tags) == 0 {
		c.Tags = []string{"Tracker"}
	}
	if c.UUID == "" {
		c.UUID = uuid.NewString()
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// Client is one connected session. Run must be called to keep the session
// state current; Input may be called concurrently.
type Client struct {
	cfg  Config
	log  *zap.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	team     int
	slot     int
	items    []tracker.ReceivedItem
	missing  map[int64]bool
	checked  map[int64]bool
	scouted  map[int64]protocol.NetworkItem
	hinted   map[int64]bool
	raceMode bool

	updates chan struct{}
}

// Dial connects to the server and completes the Connect handshake. A
// ConnectionRefused answer is returned as *protocol.RefusedError.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	c := &Client{
		cfg:     cfg,
		log:     logger,
		conn:    conn,
		missing: map[int64]bool{},
		checked: map[int64]bool{},
		scouted: map[int64]protocol.NetworkItem{},
		hinted:  map[int64]bool{},
		updates: make(chan struct{}, 1),
	}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	sentConnect := false
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		cmds, err := protocol.DecodeFrame(frame)
		if err != nil {
			return err
		}
		for i, raw := range cmds {
			base, err := protocol.DecodeBase(raw)
			if err != nil {
				continue
			}
			switch base.Cmd {
			case protocol.CmdRoomInfo:
				if sentConnect {
					continue
				}
				if err := c.send(protocol.Connect{
					Cmd:           protocol.CmdConnect,
					Password:      c.cfg.Password,
					Game:          c.cfg.Game,
					Name:          c.cfg.Slot,
					UUID:          c.cfg.UUID,
					Version:       protocol.ClientVersion,
					ItemsHandling: c.cfg.ItemsHandling,
					Tags:          c.cfg.Tags,
					SlotData:      false,
				}); err != nil {
					return err
				}
				sentConnect = true
			case protocol.CmdConnectionRefused:
				var m protocol.ConnectionRefused
				if err := json.Unmarshal(raw, &m); err != nil {
					return err
				}
				for _, code := range m.Errors {
					if !protocol.IsKnownCode(code) {
						c.log.Warn("unknown refusal code", zap.String("code", code))
					}
				}
				return &protocol.RefusedError{Codes: m.Errors}
			case protocol.CmdConnected:
				var m protocol.Connected
				if err := json.Unmarshal(raw, &m); err != nil {
					return err
				}
				if err := c.onConnected(m); err != nil {
					return err
				}
				// the rest of the frame is ordinary traffic
				for _, rest := range cmds[i+1:] {
					c.dispatch(rest)
				}
				return nil
			}
		}
	}
}

func (c *Client) onConnected(m protocol.Connected) error {
	c.mu.Lock()
	c.team, c.slot = m.Team, m.Slot
	for _, a := range m.MissingLocations {
		c.missing[a] = true
	}
	for _, a := range m.CheckedLocations {
		c.checked[a] = true
	}
	c.mu.Unlock()

	c.log.Info("connected", zap.Int("team", m.Team), zap.Int("slot", m.Slot),
		zap.Int("missing", len(m.MissingLocations)), zap.Int("checked", len(m.CheckedLocations)))

	keys := []string{protocol.HintsKey(m.Team, m.Slot), protocol.RaceModeKey}
	if err := c.send(
		protocol.Get{Cmd: protocol.CmdGet, Keys: keys},
		protocol.SetNotify{Cmd: protocol.CmdSetNotify, Keys: keys},
	); err != nil {
		return err
	}
	c.scoutChecked()
	c.notify()
	return nil
}

// Run reads server traffic until ctx is done or the connection drops.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	defer stop()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		cmds, err := protocol.DecodeFrame(frame)
		if err != nil {
			c.log.Warn("dropping frame", zap.Error(err))
			continue
		}
		for _, raw := range cmds {
			c.dispatch(raw)
		}
	}
}

func (c *Client) Close() error { return c.conn.Close() }

// Updates is signalled after any change to the session state. Bursts are
// coalesced into one pending signal.
func (c *Client) Updates() <-chan struct{} { return c.updates }

func (c *Client) Slot() (team, slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.team, c.slot
}

// Input returns a copy of the session state in the tracker's terms.
// Manual and ignored items are not part of the session.
func (c *Client) Input() tracker.Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	in := tracker.Input{
		Items:         slices.Clone(c.items),
		ItemsHandling: c.cfg.ItemsHandling,
		Missing:       maps.Clone(c.missing),
		Checked:       maps.Clone(c.checked),
		Hinted:        maps.Clone(c.hinted),
		RaceMode:      c.raceMode,
	}
	if c.cfg.ItemsHandling&protocol.ItemsOwnWorld == 0 {
		for _, a := range slices.Sorted(maps.Keys(c.checked)) {
			if ni, ok := c.scouted[a]; ok && ni.Player == c.slot {
				in.LocalItems = append(in.LocalItems, received(ni))
			}
		}
	}
	return in
}

func (c *Client) dispatch(raw json.RawMessage) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return
	}
	switch base.Cmd {
	case protocol.CmdReceivedItems:
		var m protocol.ReceivedItems
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("bad ReceivedItems", zap.Error(err))
			return
		}
		c.onReceivedItems(m)
	case protocol.CmdRoomUpdate:
		var m protocol.RoomUpdate
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("bad RoomUpdate", zap.Error(err))
			return
		}
		c.mu.Lock()
		for _, a := range m.CheckedLocations {
			c.checked[a] = true
			delete(c.missing, a)
		}
		c.mu.Unlock()
		c.scoutChecked()
		c.notify()
	case protocol.CmdLocationInfo:
		var m protocol.LocationInfo
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("bad LocationInfo", zap.Error(err))
			return
		}
		c.mu.Lock()
		for _, ni := range m.Locations {
			c.scouted[ni.Location] = ni
		}
		c.mu.Unlock()
		c.notify()
	case protocol.CmdRetrieved:
		var m protocol.Retrieved
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("bad Retrieved", zap.Error(err))
			return
		}
		for k, v := range m.Keys {
			c.onStorage(k, v)
		}
		c.notify()
	case protocol.CmdSetReply:
		var m protocol.SetReply
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("bad SetReply", zap.Error(err))
			return
		}
		c.onStorage(m.Key, m.Value)
		c.notify()
	default:
		c.log.Debug("ignoring command", zap.String("cmd", base.Cmd))
	}
}

func (c *Client) onReceivedItems(m protocol.ReceivedItems) {
	c.mu.Lock()
	switch {
	case m.Index == 0:
		c.items = c.items[:0]
	case m.Index != len(c.items):
		have := len(c.items)
		c.mu.Unlock()
		c.log.Warn("received items out of sync; resyncing", zap.Int("index", m.Index), zap.Int("have", have))
		if err := c.send(protocol.Sync{Cmd: protocol.CmdSync}); err != nil {
			c.log.Warn("sync failed", zap.Error(err))
		}
		return
	}
	for _, ni := range m.Items {
		c.items = append(c.items, received(ni))
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) onStorage(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case protocol.RaceModeKey:
		c.raceMode = protocol.Truthy(value)
	case protocol.HintsKey(c.team, c.slot):
		hinted, err := protocol.HintedLocations(value, c.slot)
		if err != nil {
			c.log.Warn("bad hints", zap.Error(err))
			return
		}
		c.hinted = hinted
	}
}

// scoutChecked asks for the contents of checked locations we have not seen
// yet. Only needed when the server does not echo our own items.
func (c *Client) scoutChecked() {
	if c.cfg.ItemsHandling&protocol.ItemsOwnWorld != 0 {
		return
	}
	c.mu.Lock()
	var unknown []int64
	for a := range c.checked {
		if _, ok := c.scouted[a]; !ok {
			unknown = append(unknown, a)
		}
	}
	c.mu.Unlock()
	if len(unknown) == 0 {
		return
	}
	slices.Sort(unknown)
	if err := c.send(protocol.LocationScouts{Cmd: protocol.CmdLocationScouts, Locations: unknown}); err != nil {
		c.log.Warn("location scouts failed", zap.Error(err))
	}
}

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Client) send(cmds ...any) error {
	b, err := protocol.EncodeFrame(cmds...)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}

func received(ni protocol.NetworkItem) tracker.ReceivedItem {
	return tracker.ReceivedItem{
		ItemID:   ni.Item,
		Location: ni.Location,
		Player:   ni.Player,
		Flags:    graph.ItemFlags(ni.Flags),
	}
}
