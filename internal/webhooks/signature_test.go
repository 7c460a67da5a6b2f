package webhooks

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

var testPayload = []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

func TestVerifySignatureAcceptsValid(t *testing.T) {
	now := time.Now()
	header := SignPayload(testSecret, testPayload, now)

	if err := VerifySignature(testSecret, testPayload, header, DefaultTolerance, now); err != nil {
		t.Errorf("VerifySignature returned %v, want nil", err)
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	header := SignPayload("whsec_other", testPayload, now)

	err := VerifySignature(testSecret, testPayload, header, DefaultTolerance, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	now := time.Now()
	header := SignPayload(testSecret, testPayload, now)
	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","amount":0}`)

	err := VerifySignature(testSecret, tampered, header, DefaultTolerance, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	signedAt := time.Now().Add(-10 * time.Minute)
	header := SignPayload(testSecret, testPayload, signedAt)

	err := VerifySignature(testSecret, testPayload, header, DefaultTolerance, time.Now())
	if !errors.Is(err, ErrTimestampTooOld) {
		t.Errorf("error = %v, want ErrTimestampTooOld", err)
	}
}

func TestVerifySignatureRejectsFutureTimestamp(t *testing.T) {
	signedAt := time.Now().Add(10 * time.Minute)
	header := SignPayload(testSecret, testPayload, signedAt)

	err := VerifySignature(testSecret, testPayload, header, DefaultTolerance, time.Now())
	if !errors.Is(err, ErrTimestampTooOld) {
		t.Errorf("error = %v, want ErrTimestampTooOld", err)
	}
}

func TestVerifySignatureHeaderErrors(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"empty", "", ErrMissingSignature},
		{"no pairs", "garbage", ErrMalformedSignature},
		{"missing digest", "t=12345", ErrMalformedSignature},
		{"missing timestamp", "v1=abcd", ErrMalformedSignature},
		{"bad timestamp", "t=notanumber,v1=abcd", ErrMalformedSignature},
		{"bad hex", "t=12345,v1=zzzz", ErrMalformedSignature},
		{"short digest", "t=12345,v1=abcd", ErrMalformedSignature},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := VerifySignature(testSecret, testPayload, c.header, DefaultTolerance, now)
			if !errors.Is(err, c.want) {
				t.Errorf("error = %v, want %v", err, c.want)
			}
		})
	}
}

func TestVerifySignatureZeroToleranceSkipsAgeCheck(t *testing.T) {
	signedAt := time.Now().Add(-24 * time.Hour)
	header := SignPayload(testSecret, testPayload, signedAt)

	if err := VerifySignature(testSecret, testPayload, header, 0, time.Now()); err != nil {
		t.Errorf("VerifySignature with zero tolerance returned %v, want nil", err)
	}
}
