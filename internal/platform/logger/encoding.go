package logger

import (
	"strings"

	"github.com/nulzo/model-curator/internal/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// colorConsole is the encoding name of the highlighted console encoder.
const colorConsole = "color-console"

var bufferPool = buffer.NewPool()

func init() {
	err := zap.RegisterEncoder(colorConsole, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return &highlightEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}, nil
	})
	if err != nil {
		panic(err)
	}
}

// highlightEncoder is the console encoder with its trailing field object
// syntax highlighted.
type highlightEncoder struct {
	zapcore.Encoder
}

func (e *highlightEncoder) Clone() zapcore.Encoder {
	return &highlightEncoder{Encoder: e.Encoder.Clone()}
}

func (e *highlightEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf, err := e.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}

	line := buf.String()
	// the console encoder tab-separates the field object from the message
	split := strings.Index(line, "\t{")
	if split == -1 {
		return buf, nil
	}

	out := bufferPool.Get()
	out.AppendString(line[:split+1])
	out.AppendString(cli.HighlightJSON(line[split+1:]))
	buf.Free()
	return out, nil
}
