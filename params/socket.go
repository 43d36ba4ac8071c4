package params

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/skyhookml/distrain/distrain"
)

// Raw socket transport. Each request is one connection: an op byte ('g' to
// fetch parameters, 'u' to push a delta), with length-prefixed binary weight
// payloads (big-endian uint32 length).
const (
	opGet    = 'g'
	opUpdate = 'u'

	// cap on a single delta frame, rejects nonsense lengths before reading
	maxFrameSize = 1 << 30
)

func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return nil, distrain.SerializationError{Reason: fmt.Sprintf("frame size %d too large", size)}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type socketServer struct {
	store *Store
	port  int

	ln net.Listener
}

func (s *socketServer) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("parameter server listen: %v", err)
	}
	s.ln = ln
	go s.acceptLoop(ln)
	log.Printf("[params] socket server listening on %s", ln.Addr().String())
	return nil
}

func (s *socketServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener closed by Stop
			return
		}
		go s.handle(conn)
	}
}

func (s *socketServer) handle(conn net.Conn) {
	defer conn.Close()
	var op [1]byte
	if _, err := io.ReadFull(conn, op[:]); err != nil {
		return
	}
	switch op[0] {
	case opGet:
		if err := writeFrame(conn, distrain.EncodeWeights(s.store.Get())); err != nil {
			log.Printf("[params] socket get reply: %v", err)
		}
	case opUpdate:
		payload, err := readFrame(conn)
		if err == nil {
			var delta distrain.WeightSet
			delta, err = distrain.DecodeWeights(payload)
			if err == nil {
				err = s.store.ApplyDelta(delta)
			}
		}
		// a malformed delta is reported to the client, never fatal here
		if err != nil {
			conn.Write([]byte{0})
			writeFrame(conn, []byte(err.Error()))
			return
		}
		conn.Write([]byte{1})
	default:
		log.Printf("[params] unknown socket op %q", op[0])
	}
}

func (s *socketServer) Stop() error {
	if s.ln == nil {
		return nil
	}
	ln := s.ln
	s.ln = nil
	return ln.Close()
}

func (s *socketServer) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

type socketClient struct {
	addr string
}

func (c *socketClient) SendDelta(delta distrain.WeightSet) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("parameter server dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{opUpdate}); err != nil {
		return err
	}
	if err := writeFrame(conn, distrain.EncodeWeights(delta)); err != nil {
		return err
	}
	var status [1]byte
	if _, err := io.ReadFull(conn, status[:]); err != nil {
		return fmt.Errorf("parameter server ack: %v", err)
	}
	if status[0] != 1 {
		msg, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("update rejected")
		}
		return fmt.Errorf("update rejected: %s", string(msg))
	}
	return nil
}

func (c *socketClient) GetParameters() (distrain.WeightSet, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("parameter server dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{opGet}); err != nil {
		return nil, err
	}
	payload, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	return distrain.DecodeWeights(payload)
}
