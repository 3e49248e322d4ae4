// Command peer-go is a terminal WebRTC peer for exercising the signaling
// relay end to end: it logs in under an id, negotiates a data channel with a
// named target through the relay, and then chats over the direct channel.
//
// Usage:
//
//	peer-go -relay ws://127.0.0.1:8080/signal -id alice
//	peer-go -relay ws://127.0.0.1:8080/signal -id bob -dial alice
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

type signalMessage struct {
	Type string `json:"type"`

	ID  string   `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`

	Target string `json:"target,omitempty"`
	From   string `json:"from,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

type peerApp struct {
	log *slog.Logger
	api *webrtc.API

	wsMu sync.Mutex
	ws   *websocket.Conn

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	remote  string
	pending []webrtc.ICECandidateInit
}

func main() {
	relayURL := flag.String("relay", "ws://127.0.0.1:8080/signal", "relay signaling endpoint")
	id := flag.String("id", "", "identity to log in under")
	dial := flag.String("dial", "", "peer id to negotiate with; empty waits for an inbound offer")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *id == "" {
		log.Error("missing -id")
		os.Exit(2)
	}

	ws, _, err := websocket.DefaultDialer.Dial(*relayURL, nil)
	if err != nil {
		log.Error("dial relay", "err", err)
		os.Exit(1)
	}
	defer ws.Close()

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logging.LogLevelWarn
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory}

	app := &peerApp{
		log: log,
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		ws:  ws,
	}

	if err := app.writeSignal(signalMessage{Type: "login", ID: *id}); err != nil {
		log.Error("login", "err", err)
		os.Exit(1)
	}
	log.Info("logged in", "id", *id)

	go app.readStdin()

	if *dial != "" {
		if err := app.offerTo(*dial); err != nil {
			log.Error("offer", "err", err)
			os.Exit(1)
		}
	}

	for {
		var msg signalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			log.Info("relay connection closed", "err", err)
			return
		}
		if err := app.handleSignal(msg); err != nil {
			log.Error("handle signal", "msg_type", msg.Type, "err", err)
		}
	}
}

func (a *peerApp) writeSignal(msg signalMessage) error {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	return a.ws.WriteJSON(msg)
}

func (a *peerApp) handleSignal(msg signalMessage) error {
	switch msg.Type {
	case "peers":
		a.log.Info("peers online", "ids", msg.IDs)
	case "join":
		a.log.Info("peer joined", "id", msg.ID)
	case "leave":
		a.log.Info("peer left", "id", msg.ID)
	case "offer":
		return a.handleOffer(msg)
	case "answer":
		return a.handleAnswer(msg)
	case "candidate":
		return a.handleCandidate(msg)
	case "chat":
		fmt.Printf("[relay] %s: %s\n", msg.From, msg.Message)
	}
	return nil
}

// offerTo starts negotiation with the named peer: data channel, local offer,
// trickle candidates through the relay.
func (a *peerApp) offerTo(target string) error {
	pc, err := a.newPeerConnection(target)
	if err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		return err
	}
	a.adoptDataChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}

	payload, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		return err
	}
	return a.writeSignal(signalMessage{Type: "offer", Target: target, Offer: payload})
}

func (a *peerApp) handleOffer(msg signalMessage) error {
	pc, err := a.newPeerConnection(msg.From)
	if err != nil {
		return err
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		a.adoptDataChannel(dc)
	})

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Offer, &offer); err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	a.flushPendingCandidates()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}

	payload, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		return err
	}
	return a.writeSignal(signalMessage{Type: "answer", Target: msg.From, Answer: payload})
}

func (a *peerApp) handleAnswer(msg signalMessage) error {
	a.mu.Lock()
	pc := a.pc
	a.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("answer without a pending offer")
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	a.flushPendingCandidates()
	return nil
}

func (a *peerApp) handleCandidate(msg signalMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &cand); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pc == nil || a.pc.RemoteDescription() == nil {
		// Trickled candidates can arrive before the description; buffer them.
		a.pending = append(a.pending, cand)
		return nil
	}
	return a.pc.AddICECandidate(cand)
}

func (a *peerApp) flushPendingCandidates() {
	a.mu.Lock()
	pc := a.pc
	buf := a.pending
	a.pending = nil
	a.mu.Unlock()

	for _, cand := range buf {
		if err := pc.AddICECandidate(cand); err != nil {
			a.log.Warn("add buffered candidate", "err", err)
		}
	}
}

func (a *peerApp) newPeerConnection(remote string) (*webrtc.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := a.writeSignal(signalMessage{Type: "candidate", Target: remote, Candidate: payload}); err != nil {
			a.log.Warn("send candidate", "err", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		a.log.Info("peer connection state", "remote", remote, "state", state.String())
	})

	a.mu.Lock()
	a.pc = pc
	a.remote = remote
	a.pending = nil
	a.mu.Unlock()
	return pc, nil
}

func (a *peerApp) adoptDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		a.log.Info("data channel open", "label", dc.Label())
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		fmt.Printf("[direct] %s\n", string(m.Data))
	})

	a.mu.Lock()
	a.dc = dc
	a.mu.Unlock()
}

// readStdin pipes typed lines to the direct channel once it is open, falling
// back to relayed chat while negotiation is still in flight.
func (a *peerApp) readStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		a.mu.Lock()
		dc := a.dc
		remote := a.remote
		a.mu.Unlock()

		if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
			if err := dc.SendText(line); err != nil {
				a.log.Warn("direct send", "err", err)
			}
			continue
		}
		if remote == "" {
			a.log.Warn("no peer to send to yet")
			continue
		}
		payload, _ := json.Marshal(line)
		if err := a.writeSignal(signalMessage{Type: "chat", Target: remote, Message: payload}); err != nil {
			a.log.Warn("relay chat", "err", err)
		}
	}
}
