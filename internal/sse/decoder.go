package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

// MaxLineBytes bounds a single stream line. Longer lines are dropped like
// malformed ones.
const MaxLineBytes = 1 << 20

// Decoder reads events from a byte stream. Lines split across reads are
// buffered until their newline arrives; a trailing line without a newline at
// end of stream is discarded.
type Decoder struct {
	r       *bufio.Reader
	label   string
	maxLine int
	logger  *logger.Logger
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, log *logger.Logger) *Decoder {
	return &Decoder{
		r:       bufio.NewReader(r),
		maxLine: MaxLineBytes,
		logger:  logger.OrNop(log),
	}
}

// Next returns the next recognized event. It returns io.EOF once the stream
// is exhausted. Malformed data lines and unknown labels are skipped.
func (d *Decoder) Next() (Event, error) {
	for {
		line, oversized, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Unterminated trailing line is never parsed.
				return nil, io.EOF
			}
			return nil, err
		}
		if oversized {
			metrics.ClientStreamDecodeErrors.Inc()
			d.logger.Debug("dropping oversized stream line",
				zap.String("event", d.label),
				zap.Int("limit", d.maxLine),
			)
			continue
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			d.label = ""
			continue
		}

		if value, ok := field(line, "event:"); ok {
			d.label = value
			continue
		}

		value, ok := field(line, "data:")
		if !ok {
			continue
		}

		ev, err := d.decode(Kind(d.label), value)
		if err != nil {
			metrics.ClientStreamDecodeErrors.Inc()
			d.logger.Debug("dropping malformed stream data",
				zap.String("event", d.label),
				zap.Error(err),
			)
			continue
		}
		if ev == nil {
			continue
		}

		metrics.RecordStreamEvent(string(ev.Kind()))
		return ev, nil
	}
}

// readLine returns the next newline-terminated line. Once a line grows past
// maxLine the rest of it is read and discarded, and oversized is reported.
func (d *Decoder) readLine() (string, bool, error) {
	var (
		buf       []byte
		oversized bool
	)
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > d.maxLine {
				oversized, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			return string(buf), oversized, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", false, err
		}
	}
}

func (d *Decoder) decode(kind Kind, data string) (Event, error) {
	raw := json.RawMessage(data)
	if !json.Valid(raw) {
		return nil, errors.New("invalid JSON payload")
	}

	switch kind {
	case KindToken:
		var ev TokenEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Token == "" {
			return nil, nil
		}
		return ev, nil
	case KindThinking:
		var ev ThinkingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Text == "" {
			return nil, nil
		}
		return ev, nil
	case KindResult:
		if !isObject(raw) {
			return nil, errors.New("result payload is not an object")
		}
		return ResultEvent{Payload: append(json.RawMessage(nil), raw...)}, nil
	case KindMeta:
		if !isObject(raw) {
			return nil, errors.New("meta payload is not an object")
		}
		return MetaEvent{Payload: append(json.RawMessage(nil), raw...)}, nil
	default:
		return nil, nil
	}
}

func field(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimPrefix(line[len(prefix):], " "), true
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
