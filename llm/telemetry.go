package llm

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	tellm "github.com/santiagomed/tellm/sdk"

	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

// recorder forwards completed prompt/response pairs to a tellm collector.
// A nil recorder drops everything; collector failures only warn, they
// never fail the completion that produced them.
type recorder struct {
	client  *tellm.Client
	batchID string
	model   string
	logger  logger.Logger
}

func newRecorder(cfg *Config, log logger.Logger) *recorder {
	if cfg.TellmURL == "" {
		return nil
	}
	return &recorder{
		client:  tellm.NewClient(cfg.TellmURL),
		batchID: cfg.BatchID,
		model:   cfg.Model,
		logger:  log,
	}
}

func (r *recorder) record(messages []prompt.Message, response string, inTokens, outTokens int) {
	if r == nil {
		return
	}
	promptJSON, err := json.Marshal(messages)
	if err != nil {
		r.logger.WithField("warning", err).Warn("failed to encode prompt for tellm")
		return
	}
	if err := r.client.Log(r.batchID, string(promptJSON), response, r.model, inTokens, outTokens); err != nil {
		r.logger.WithField("warning", err).Warn("failed to log to tellm")
	}
}

func generateBatchID() string {
	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)

	id := make([]byte, 12)
	binary.BigEndian.PutUint32(id[:4], uint32(timestamp))
	copy(id[4:], randomBytes)

	return hex.EncodeToString(id)
}

func isValidBatchID(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil && len(s) == 24
}

// EnsureBatchID returns s when it is already a valid batch ID and a fresh
// one otherwise.
func EnsureBatchID(s string) string {
	if !isValidBatchID(s) {
		return generateBatchID()
	}
	return s
}
