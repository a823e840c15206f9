package t140_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/haivivi/t140cast/pkg/t140"
	"github.com/haivivi/t140cast/pkg/textstream"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPackets(t *testing.T, conn *net.UDPConn, n int) []rtp.Packet {
	t.Helper()
	pkts := make([]rtp.Packet, 0, n)
	buf := make([]byte, 1500)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(pkts) < n {
		m, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read packet %d: %v", len(pkts), err)
		}
		var p rtp.Packet
		if err := p.Unmarshal(append([]byte(nil), buf[:m]...)); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		pkts = append(pkts, p)
	}
	return pkts
}

func dialRTP(t *testing.T, conn *net.UDPConn, ep t140.RTPEndpoint) *t140.RTP {
	t.Helper()
	addr := conn.LocalAddr().(*net.UDPAddr)
	ep.Host = addr.IP.String()
	ep.Port = addr.Port
	r, err := t140.DialRTP(context.Background(), ep, discardLogger())
	if err != nil {
		t.Fatalf("DialRTP: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRTPSendText(t *testing.T) {
	conn := listenUDP(t)
	r := dialRTP(t, conn, t140.RTPEndpoint{SSRC: 0xCAFE})

	if err := r.SendText("hé"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	pkts := readPackets(t, conn, 2)

	if string(pkts[0].Payload) != "h" || string(pkts[1].Payload) != "é" {
		t.Fatalf("payloads = %q, %q", pkts[0].Payload, pkts[1].Payload)
	}
	for _, p := range pkts {
		if p.Version != 2 || p.PayloadType != t140.DefaultPayloadType || p.SSRC != 0xCAFE {
			t.Fatalf("header = %+v", p.Header)
		}
	}
	if pkts[1].SequenceNumber != pkts[0].SequenceNumber+1 {
		t.Fatalf("sequence %d then %d", pkts[0].SequenceNumber, pkts[1].SequenceNumber)
	}
	if !pkts[0].Marker {
		t.Fatal("first packet must carry the marker bit")
	}
	if pkts[1].Timestamp < pkts[0].Timestamp {
		t.Fatal("timestamps went backwards")
	}
}

func TestRTPRateLimit(t *testing.T) {
	conn := listenUDP(t)
	r := dialRTP(t, conn, t140.RTPEndpoint{CharRateLimit: 20})

	start := time.Now()
	if err := r.SendText("abcde"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	// Burst of one: four waits of 50ms after the first character.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("5 chars at 20/s took %v, pacing not applied", elapsed)
	}
	readPackets(t, conn, 5)
}

func TestRTPAttachStream(t *testing.T) {
	conn := listenUDP(t)
	r := dialRTP(t, conn, t140.RTPEndpoint{})

	done := make(chan error, 1)
	err := r.AttachStream(textstream.FromChunks("ab\b", "c"), t140.AttachOptions{
		ProcessBackspaces: true,
		OnDone:            func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("AttachStream: %v", err)
	}
	pkts := readPackets(t, conn, 2)
	if got := string(pkts[0].Payload) + string(pkts[1].Payload); got != "ac" {
		t.Fatalf("received %q, want %q", got, "ac")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pump error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish")
	}
}

func TestRTPCloseStopsPump(t *testing.T) {
	conn := listenUDP(t)
	r := dialRTP(t, conn, t140.RTPEndpoint{CharRateLimit: 1})

	b := textstream.NewBuilder()
	done := make(chan error, 1)
	if err := r.AttachStream(b.Stream(), t140.AttachOptions{OnDone: func(err error) { done <- err }}); err != nil {
		t.Fatalf("AttachStream: %v", err)
	}
	b.Add("slow text")
	readPackets(t, conn, 1)

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("pump should report the interruption")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pump still running after Close")
	}
	if err := r.SendText("x"); err == nil {
		t.Fatal("SendText after Close should fail")
	}
}
