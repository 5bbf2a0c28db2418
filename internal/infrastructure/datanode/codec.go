package datanode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/pkg/errors"
)

func encodeMessage(msg *models.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode message")
	}
	return data, nil
}

func decodeMessage(data []byte) (*models.Message, error) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode message")
	}
	return &msg, nil
}

// ComputeMessageID derives the message id from the message content. The
// same logical message hashes to the same id on every node, which is what
// lets nodes recognize a message they already hold.
func ComputeMessageID(msg *models.Message) string {
	h := sha256.New()
	h.Write([]byte(msg.DID))
	h.Write([]byte{0})
	h.Write([]byte(msg.Type))
	h.Write([]byte{0})
	h.Write([]byte(msg.RecordID))
	h.Write([]byte{0})
	h.Write(msg.Data)
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(msg.Timestamp.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
