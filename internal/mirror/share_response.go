package mirror

import (
	"encoding/json"
	"errors"
	"io"
)

type ocsShareResponse struct {
	OCS struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"ocs"`
}

func decodeShareURL(body io.Reader) (string, error) {
	var parsed ocsShareResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.OCS.Data.URL == "" {
		return "", errors.New("share response missing ocs.data.url")
	}
	return parsed.OCS.Data.URL, nil
}
