// Package protocol holds the multiworld server wire messages the tracker
// speaks. Every websocket frame is a JSON array of commands, each routed by
// its "cmd" field.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client version sent in Connect.
var ClientVersion = NewVersion(0, 6, 2)

// Commands.
const (
	CmdRoomInfo          = "RoomInfo"
	CmdConnect           = "Connect"
	CmdConnected         = "Connected"
	CmdConnectionRefused = "ConnectionRefused"
	CmdReceivedItems     = "ReceivedItems"
	CmdLocationInfo      = "LocationInfo"
	CmdLocationScouts    = "LocationScouts"
	CmdRoomUpdate        = "RoomUpdate"
	CmdSync              = "Sync"
	CmdGet               = "Get"
	CmdSetNotify         = "SetNotify"
	CmdRetrieved         = "Retrieved"
	CmdSetReply          = "SetReply"
	CmdPrintJSON         = "PrintJSON"
	CmdBounced           = "Bounced"
)

// BaseMessage lets us route unknown commands by name.
type BaseMessage struct {
	Cmd string `json:"cmd"`
}

// DecodeFrame splits a websocket frame into its commands.
func DecodeFrame(b []byte) ([]json.RawMessage, error) {
	var cmds []json.RawMessage
	if err := json.Unmarshal(b, &cmds); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return cmds, nil
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// EncodeFrame packs commands into one frame.
func EncodeFrame(cmds ...any) ([]byte, error) {
	if cmds == nil {
		cmds = []any{}
	}
	return json.Marshal(cmds)
}
