package mailer

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

// job is the queued form of a Message.
type job struct {
	ID         string    `cbor:"1,keyasint"`
	To         string    `cbor:"2,keyasint"`
	Subject    string    `cbor:"3,keyasint"`
	Body       string    `cbor:"4,keyasint"`
	EnqueuedAt time.Time `cbor:"5,keyasint"`
	LastError  string    `cbor:"6,keyasint,omitempty"`
}

func (j job) message() Message {
	return Message{To: j.To, Subject: j.Subject, Body: j.Body}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	if encMode, err = opts.EncMode(); err != nil {
		panic("mailer: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("mailer: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeJob(j job) ([]byte, error) {
	return encMode.Marshal(j)
}

func decodeJob(data []byte) (job, error) {
	var j job
	err := decMode.Unmarshal(data, &j)
	return j, err
}
