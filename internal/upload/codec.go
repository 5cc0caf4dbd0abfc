package upload

import (
	"encoding/json"

	"github.com/shimmerdata/beacon/models"
)

func marshalEnvelope(e models.Envelope) ([]byte, error) {
	return json.Marshal(e)
}
