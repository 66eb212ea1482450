// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package glm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// STREAMING: every complete "data:" line is one payload. Blank lines only
// separate groups of fields and are never waited for.

// MaxEventSize is the largest single SSE line accepted (64KB).
const MaxEventSize = 64 * 1024

// DoneSentinel is the payload that ends a stream.
const DoneSentinel = "[DONE]"

// =============================================================================
// EVENT READER
// =============================================================================

// Event is one decoded "data:" line together with the event name and id in
// effect when it arrived.
type Event struct {
	Name string
	ID   string
	Data string
}

// EventReader decodes SSE data lines from a byte stream. Read boundaries need
// not align with lines; an incomplete line is buffered until its terminator
// arrives or the stream ends.
type EventReader struct {
	reader  *bufio.Reader
	maxSize int

	// name and id apply to data lines until the next blank line.
	name string
	id   string
}

// NewEventReader creates an event reader.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{reader: bufio.NewReader(r), maxSize: MaxEventSize}
}

// Next returns the event for the next data line as soon as that line is
// complete. An unterminated data line at the end of the stream is delivered
// too. It returns io.EOF once the stream ends.
func (e *EventReader) Next() (Event, error) {
	for {
		line, err := e.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := err != nil

		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			e.name, e.id = "", ""
		case line[0] == ':':
			// comment
		default:
			field, value := splitField(line)
			switch field {
			case "data":
				return Event{Name: e.name, ID: e.id, Data: toText(value)}, nil
			case "event":
				e.name = toText(value)
			case "id":
				e.id = toText(value)
			}
			// retry and unknown fields are ignored
		}

		if eof {
			return Event{}, io.EOF
		}
	}
}

// readLine returns one line including its terminator. At end of stream it
// returns the unterminated remainder together with io.EOF.
func (e *EventReader) readLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := e.reader.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > e.maxSize {
			return nil, ErrEventTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

// splitField splits "name: value", dropping one optional space after the colon.
// Remaining whitespace is payload and is kept.
func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}

func toText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// =============================================================================
// CHARSET
// =============================================================================

type decodedBody struct {
	io.Reader
	io.Closer
}

// DecodeBody wraps body so it yields UTF-8 according to the charset in
// contentType. Bodies that are already UTF-8, or declare an unknown charset,
// are returned unchanged.
func DecodeBody(body io.ReadCloser, contentType string) io.ReadCloser {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	return decodedBody{Reader: transform.NewReader(body, enc.NewDecoder()), Closer: body}
}

// =============================================================================
// STREAM CONSUMER
// =============================================================================

// StreamEvent is one item produced by Consume. Exactly one terminal event
// (Done or Err set) is sent, after every chunk, and the channel is then closed.
type StreamEvent struct {
	Chunk string
	Done  bool
	Err   error
}

// Terminal reports whether this is the final event of the stream.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Err != nil
}

// Consume decodes body on a new goroutine and sends text increments in the
// order received. The caller must drain the channel until it is closed.
//
// Cancelling ctx stops the read: if body is an io.Closer it is closed, and
// the terminal event carries ctx.Err().
func Consume(ctx context.Context, body io.Reader) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)

	go func() {
		defer close(out)

		if closer, ok := body.(io.Closer); ok {
			stop := context.AfterFunc(ctx, func() { closer.Close() })
			defer stop()
			defer closer.Close()
		}

		reader := NewEventReader(body)
		for {
			if err := ctx.Err(); err != nil {
				out <- StreamEvent{Err: err}
				return
			}

			ev, err := reader.Next()
			if err != nil {
				switch {
				case ctx.Err() != nil:
					out <- StreamEvent{Err: ctx.Err()}
				case errors.Is(err, io.EOF):
					out <- StreamEvent{Done: true}
				default:
					out <- StreamEvent{Err: err}
				}
				return
			}

			if ev.Name == "error" {
				out <- StreamEvent{Err: &RemoteStreamError{Message: ev.Data}}
				return
			}
			if strings.TrimSpace(ev.Data) == DoneSentinel {
				out <- StreamEvent{Done: true}
				return
			}
			if ev.Data == "" {
				continue
			}
			out <- StreamEvent{Chunk: ev.Data}
		}
	}()

	return out
}

// StreamCallbacks receive the events of one stream. Exactly one of
// OnComplete and OnError is called, after every OnChunk. Nil callbacks are
// skipped.
type StreamCallbacks struct {
	OnChunk    func(text string)
	OnComplete func()
	OnError    func(err error)
}

// ConsumeFunc consumes body and calls the callbacks on the calling goroutine.
// It returns the terminal error, or nil when the stream completed.
func ConsumeFunc(ctx context.Context, body io.Reader, cb StreamCallbacks) error {
	var result error
	for ev := range Consume(ctx, body) {
		switch {
		case ev.Err != nil:
			result = ev.Err
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		case ev.Done:
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		default:
			if cb.OnChunk != nil {
				cb.OnChunk(ev.Chunk)
			}
		}
	}
	return result
}

// Collect consumes body and returns the concatenated text. On failure the
// error is a *StreamError carrying whatever arrived first.
func Collect(ctx context.Context, body io.Reader) (string, error) {
	var sb strings.Builder
	err := ConsumeFunc(ctx, body, StreamCallbacks{
		OnChunk: func(text string) { sb.WriteString(text) },
	})
	if err != nil {
		return sb.String(), &StreamError{Partial: sb.String(), Err: err}
	}
	return sb.String(), nil
}
