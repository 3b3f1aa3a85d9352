package response

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the JSON document returned by OCS endpoints.
type Envelope struct {
	OCS struct {
		Meta Meta            `json:"meta"`
		Data json.RawMessage `json:"data"`
	} `json:"ocs"`
}

type Meta struct {
	Status       string `json:"status"`
	StatusCode   int    `json:"statuscode"`
	Message      string `json:"message"`
	TotalItems   string `json:"totalitems,omitempty"`
	ItemsPerPage string `json:"itemsperpage,omitempty"`
}

// OCS decodes the body as an OCS envelope.
func (r *Response) OCS() (*Envelope, error) {
	var env Envelope
	if err := r.DecodeJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// OCSData decodes the data member of the OCS envelope into v.
func (r *Response) OCSData(v interface{}) error {
	env, err := r.OCS()
	if err != nil {
		return err
	}
	if len(env.OCS.Data) == 0 {
		return fmt.Errorf("OCS response has no data")
	}
	dec := json.NewDecoder(bytes.NewReader(env.OCS.Data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding OCS data: %w", err)
	}
	return nil
}
