package payment

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Well-known webhook event types. Unrecognized types are acknowledged
// without processing.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventChargeDisputeCreated     = "charge.dispute.created"
)

// ErrMalformedEvent is returned when a payload cannot be decoded into an
// event envelope.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a decoded webhook event. Exactly one of Session, PaymentIntent,
// or Dispute is populated, matching Type; all are nil for unrecognized types.
type Event struct {
	ID   string
	Type string

	Session       *CheckoutSession
	PaymentIntent *PaymentIntent
	Dispute       *Dispute
}

// CheckoutSession is the processor's session object as delivered in events.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
}

// PaymentIntent is the processor's payment intent object as delivered in
// events.
type PaymentIntent struct {
	ID             string
	FailureMessage string
}

// Dispute is the processor's dispute object as delivered in events.
type Dispute struct {
	ID              string
	PaymentIntentID string
	Reason          string
}

// ParseEvent decodes the raw signed payload into an Event. Only the envelope
// (id, type) and the fields the reconciler consumes are extracted; everything
// else is skipped without allocation.
func ParseEvent(payload []byte) (*Event, error) {
	var (
		e      Event
		object jx.Raw
	)

	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			e.ID = v
			return err
		case "type":
			v, err := d.Str()
			e.Type = v
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				raw, err := d.Raw()
				object = raw
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if e.ID == "" || e.Type == "" {
		return nil, ErrMalformedEvent
	}

	if err := e.decodeObject(object); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	return &e, nil
}

// decodeObject populates the typed payload for recognized event types. A
// recognized type without a data.object is malformed: the dispatch handlers
// rely on the payload being present.
func (e *Event) decodeObject(raw jx.Raw) error {
	var decode func(jx.Raw) error
	switch e.Type {
	case EventCheckoutSessionCompleted:
		decode = e.decodeSession
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		decode = e.decodePaymentIntent
	case EventChargeDisputeCreated:
		decode = e.decodeDispute
	default:
		return nil
	}

	if len(raw) == 0 {
		return errors.New("missing data.object")
	}
	return decode(raw)
}

func (e *Event) decodeSession(raw jx.Raw) error {
	s := &CheckoutSession{}
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			s.ID = v
			return err
		case "payment_intent":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			s.PaymentIntentID = v
			return err
		case "customer_details":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "name":
					return decodeOptStr(d, &s.CustomerName)
				case "email":
					return decodeOptStr(d, &s.CustomerEmail)
				case "phone":
					return decodeOptStr(d, &s.CustomerPhone)
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}
	e.Session = s
	return nil
}

func (e *Event) decodePaymentIntent(raw jx.Raw) error {
	pi := &PaymentIntent{}
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			pi.ID = v
			return err
		case "last_payment_error":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "message" {
					return d.Skip()
				}
				return decodeOptStr(d, &pi.FailureMessage)
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}
	e.PaymentIntent = pi
	return nil
}

func (e *Event) decodeDispute(raw jx.Raw) error {
	dp := &Dispute{}
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			dp.ID = v
			return err
		case "payment_intent":
			return decodeOptStr(d, &dp.PaymentIntentID)
		case "reason":
			return decodeOptStr(d, &dp.Reason)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}
	e.Dispute = dp
	return nil
}

func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	*dst = v
	return err
}
