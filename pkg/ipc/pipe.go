/*
Copyright 2024 reloaderd authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pipe is a bidirectional, length-prefixed, gob-framed channel between a
// supervisor and the worker it spawned. The parent and child each hold one
// end; Activate starts the reader goroutine and closes the half that
// belongs to the other process.
//
// Wire format: 8-byte little-endian length, followed by a gob-encoded
// Packet. This is stable across a parent/child pair built from the same
// binary, which is all reloaderd ever needs.
type Pipe struct {
	// The two underlying OS pipes, named by which process keeps each end
	// once Activate runs: the parent reads child -> parent traffic from
	// parentRead and writes parent -> child traffic to parentWrite; the
	// child uses childRead and childWrite the same way.
	parentRead, parentWrite *os.File
	childRead, childWrite   *os.File

	log logrus.FieldLogger

	writeMu  sync.Mutex
	writeTo  *os.File // the end this process writes to, once activated
	readFrom *os.File // the end this process reads from, once activated

	incoming chan Packet
	done     chan struct{}
	closeOne sync.Once
}

// NewPipe allocates both underlying OS pipes. Call this in the parent
// before spawning; pass the child-side descriptors across the fork, then
// call Activate(true) in the parent and Activate(false) in the child.
func NewPipe(log logrus.FieldLogger) (*Pipe, error) {
	cr, pw, err := os.Pipe() // child reads, parent writes (parent -> child)
	if err != nil {
		return nil, fmt.Errorf("ipc: creating parent->child pipe: %w", err)
	}
	pr, cw, err := os.Pipe() // parent reads, child writes (child -> parent)
	if err != nil {
		cr.Close()
		pw.Close()
		return nil, fmt.Errorf("ipc: creating child->parent pipe: %w", err)
	}
	return &Pipe{
		parentRead:  pr,
		parentWrite: pw,
		childRead:   cr,
		childWrite:  cw,
		log:         log,
		incoming:    make(chan Packet, 16),
		done:        make(chan struct{}),
	}, nil
}

// ChildFiles returns the two descriptors the child process needs inherited
// across spawn, in the order they should be appended to exec.Cmd.ExtraFiles.
func (p *Pipe) ChildFiles() []*os.File {
	return []*os.File{p.childRead, p.childWrite}
}

// Activate closes the file descriptors that belong to the other side of
// the fork and starts the reader goroutine that drains the remaining read
// end into Incoming(). isParent selects which half this process keeps.
func (p *Pipe) Activate(isParent bool) {
	if isParent {
		p.childRead.Close()
		p.childWrite.Close()
		p.writeTo = p.parentWrite
		p.readFrom = p.parentRead
	} else {
		p.parentRead.Close()
		p.parentWrite.Close()
		p.writeTo = p.childWrite
		p.readFrom = p.childRead
	}
	go p.readLoop(p.readFrom)
}

// NewLoopback builds two activated Pipes, already wired to each other
// through two real os.Pipe() pairs, without going through Spawn or an
// exec boundary. Exported for tests in other packages that need a live
// parent/child control channel without forking a process.
func NewLoopback(log logrus.FieldLogger) (parent, child *Pipe, err error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: creating loopback pipe: %w", err)
	}
	cr, cw, err := os.Pipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, fmt.Errorf("ipc: creating loopback pipe: %w", err)
	}

	parent = &Pipe{
		readFrom: pr,
		writeTo:  cw,
		log:      log,
		incoming: make(chan Packet, 16),
		done:     make(chan struct{}),
	}
	child = &Pipe{
		readFrom: cr,
		writeTo:  pw,
		log:      log,
		incoming: make(chan Packet, 16),
		done:     make(chan struct{}),
	}
	go parent.readLoop(parent.readFrom)
	go child.readLoop(child.readFrom)
	return parent, child, nil
}

// ActivateFromFDs rebuilds a Pipe on the child side from the two inherited
// file descriptors, as produced by ChildFiles across an exec boundary.
func ActivateFromFDs(readFD, writeFD uintptr, log logrus.FieldLogger) *Pipe {
	p := &Pipe{
		childRead:  os.NewFile(readFD, "reloaderd-ctl-r"),
		childWrite: os.NewFile(writeFD, "reloaderd-ctl-w"),
		log:        log,
		incoming:   make(chan Packet, 16),
		done:       make(chan struct{}),
	}
	p.writeTo = p.childWrite
	p.readFrom = p.childRead
	go p.readLoop(p.readFrom)
	return p
}

// Incoming returns the channel of packets observed on this pipe, in
// order. EOF or a short read closes this channel rather than sending a
// value; a malformed frame is logged and skipped, not treated as EOF.
// Callers detect the end of the stream with a range loop, not by
// inspecting a sentinel Packet.
func (p *Pipe) Incoming() <-chan Packet { return p.incoming }

// Send writes a packet to the opposite end. Safe for concurrent use.
func (p *Pipe) Send(pkt Packet) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pkt); err != nil {
		return fmt.Errorf("ipc: encoding packet: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(buf.Len()))
	if _, err := p.writeTo.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("ipc: writing frame length: %w", err)
	}
	if _, err := p.writeTo.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("ipc: writing frame payload: %w", err)
	}
	return nil
}

// readLoop drains r, decoding one frame at a time, until EOF or a short
// read. Both a clean EOF and a truncated frame (a partial write because
// the other side died mid-message) are treated identically: close
// Incoming and stop. Distinguishing "died cleanly" from "died mid-frame"
// buys nothing, since the supervisor's stuck-pipe handling treats both the
// same way: a truncated frame is indistinguishable from a clean close.
func (p *Pipe) readLoop(r *os.File) {
	defer close(p.incoming)
	defer close(p.done)

	for {
		var lenPrefix [8]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			if p.log != nil && err != io.EOF {
				p.log.Debugf("ipc: control pipe read ended: %v", err)
			}
			return
		}
		n := binary.LittleEndian.Uint64(lenPrefix[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			if p.log != nil {
				p.log.Debugf("ipc: control pipe truncated frame: %v", err)
			}
			return
		}
		var pkt Packet
		if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&pkt); err != nil {
			if p.log != nil {
				p.log.Warnf("ipc: dropping malformed control packet: %v", err)
			}
			continue
		}
		p.incoming <- pkt
	}
}

// Done reports a channel closed once the reader goroutine has exited.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Close closes this process's two pipe descriptors. Idempotent.
func (p *Pipe) Close() {
	p.closeOne.Do(func() {
		if p.writeTo != nil {
			p.writeTo.Close()
		}
		if p.readFrom != nil {
			p.readFrom.Close()
		}
	})
}
