// simclient is a runnable illustration of the streaming RPC surface: it
// dials the device, sends a Setup message, and logs a summary of each of the
// first -frames frames it receives; when -unblock-channel is set it also
// sends one Unblock for that channel's read once a frame carries it -
// adapted from the teacher's cmd/client/client.go dial-and-read-loop shape.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synthpore/seqdevice/internal/engine"
)

func main() {
	host := flag.String("host", "localhost:8080", "device host:port")
	firstChannel := flag.Uint("first", 1, "first channel to subscribe to")
	lastChannel := flag.Uint("last", 512, "last channel to subscribe to")
	unblockChannel := flag.Uint("unblock-channel", 0, "if nonzero, send an Unblock for this channel after the first frame that carries it")
	frames := flag.Int("frames", 20, "number of frames to print before exiting")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/live_reads"}

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	setup := engine.Request{Setup: &engine.Setup{
		FirstChannel: uint32(*firstChannel),
		LastChannel:  uint32(*lastChannel),
		RawDataType:  "uncalibrated",
	}}
	if err := c.WriteJSON(setup); err != nil {
		log.Fatal("setup:", err)
	}

	sentUnblock := false
	for i := 0; i < *frames; i++ {
		var frame engine.LiveReadsResponse
		if err := c.ReadJSON(&frame); err != nil {
			log.Println("read:", err)
			return
		}
		log.Printf("frame %d: %d channels, %d action responses", i, len(frame.Channels), len(frame.ActionResponses))

		if !sentUnblock && *unblockChannel != 0 {
			if data, ok := frame.Channels[uint32(*unblockChannel)]; ok {
				req := engine.Request{Actions: []engine.Action{{
					ActionID:   "cli-unblock-1",
					Channel:    uint32(*unblockChannel),
					HasReadID:  false,
					ReadNumber: data.Number,
					Kind:       engine.ActionUnblock,
				}}}
				if b, err := json.Marshal(req); err == nil {
					log.Printf("sending unblock: %s", b)
				}
				if err := c.WriteJSON(req); err != nil {
					log.Println("unblock write:", err)
				}
				sentUnblock = true
			}
		}

		time.Sleep(50 * time.Millisecond)
	}
}
