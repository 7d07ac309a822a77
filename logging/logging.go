package logging

import (
	"encoding/json"
	"fmt"

	"github.com/kcolemangt/llm-gateway/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger initializes and returns a new zap.Logger based on the provided log level.
// Every entry written through it has secrets masked.
func NewLogger(level string) (*zap.Logger, error) {
	var zapConfig zap.Config

	if level == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	var logLevel zap.AtomicLevel
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	zapConfig.Level = logLevel

	return zapConfig.Build(zap.WrapCore(NewMaskingCore))
}

// KeyInfo is a zap field describing a key by length and prefix only.
func KeyInfo(name, key string) zap.Field {
	return zap.String(name, utils.KeyInfo(key))
}

type maskingCore struct {
	zapcore.Core
}

// NewMaskingCore wraps core so messages and fields are passed through
// utils.MaskSecrets before encoding. Reflected, object and array fields are rendered
// to JSON first and replaced by the masked string when they carry a secret.
func NewMaskingCore(core zapcore.Core) zapcore.Core {
	return &maskingCore{Core: core}
}

func (c *maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskingCore{Core: c.Core.With(maskFields(fields))}
}

func (c *maskingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *maskingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = utils.MaskSecrets(ent.Message)
	return c.Core.Write(ent, maskFields(fields))
}

func maskFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = utils.MaskSecrets(f.String)
		case zapcore.ByteStringType:
			if b, ok := f.Interface.([]byte); ok {
				f = zap.String(f.Key, utils.MaskSecrets(string(b)))
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok {
				f = zap.String(f.Key, utils.MaskSecrets(s.String()))
			}
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				f = zap.String(f.Key, utils.MaskSecrets(err.Error()))
			}
		case zapcore.ReflectType, zapcore.ObjectMarshalerType, zapcore.ArrayMarshalerType:
			f = maskStructured(f)
		}
		out[i] = f
	}
	return out
}

func maskStructured(f zapcore.Field) zapcore.Field {
	enc := zapcore.NewMapObjectEncoder()
	f.AddTo(enc)
	raw, err := json.Marshal(enc.Fields[f.Key])
	if err != nil {
		return zap.String(f.Key, utils.MaskSecrets(fmt.Sprintf("%+v", f.Interface)))
	}
	if masked := utils.MaskSecrets(string(raw)); masked != string(raw) {
		return zap.String(f.Key, masked)
	}
	return f
}
