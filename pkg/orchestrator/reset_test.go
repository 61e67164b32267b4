package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

type fakeResetter struct {
	forget   []auth.ForgetOTPRequest
	verify   []auth.VerifyOTPRequest
	forgetFn func() error
	verifyFn func(req auth.VerifyOTPRequest) error
}

func (f *fakeResetter) SendForgetOTP(_ context.Context, req auth.ForgetOTPRequest) (string, error) {
	f.forget = append(f.forget, req)
	if f.forgetFn != nil {
		if err := f.forgetFn(); err != nil {
			return "", err
		}
	}
	return "OTP sent", nil
}

func (f *fakeResetter) VerifyOTP(_ context.Context, req auth.VerifyOTPRequest) (string, error) {
	f.verify = append(f.verify, req)
	if f.verifyFn != nil {
		if err := f.verifyFn(req); err != nil {
			return "", err
		}
	}
	return "Password updated", nil
}

func TestPasswordReset_RejectsInput(t *testing.T) {
	t.Parallel()

	backend := &fakeResetter{}
	reset := orchestrator.NewPasswordReset(backend)
	defer reset.Close()
	ctx := testsupport.Context()

	cases := []struct {
		identifier, password, want string
	}{
		{"", "Secret#123", orchestrator.MessageResetMissing},
		{"Bad Name!", "Secret#123", auth.MessageIdentifierFormat},
		{"asha_rao", "weak", orchestrator.MessageResetPassword},
	}
	for _, tc := range cases {
		err := reset.RequestOTP(ctx, tc.identifier, tc.password)
		var input *orchestrator.InputError
		if !errors.As(err, &input) || !errors.Is(err, orchestrator.ErrInvalidInput) {
			t.Fatalf("RequestOTP(%q, %q) = %v", tc.identifier, tc.password, err)
		}
		if input.Message != tc.want {
			t.Fatalf("message = %q, want %q", input.Message, tc.want)
		}
	}
	if len(backend.forget) != 0 {
		t.Fatalf("invalid input reached the network")
	}
	if err := reset.Verify(ctx, "123456"); !errors.Is(err, orchestrator.ErrInvalidTransition) {
		t.Fatalf("verify before request: %v", err)
	}
}

func TestPasswordReset_Flow(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(epoch)
	backend := &fakeResetter{verifyFn: func(req auth.VerifyOTPRequest) error {
		if req.OTP == 111111 {
			return &auth.APIError{Op: auth.OpVerifyOTP, Status: 400, Kind: auth.KindInvalidOTP}
		}
		return nil
	}}
	reset := orchestrator.NewPasswordReset(backend, orchestrator.WithResetClock(clock))
	defer reset.Close()
	ctx := testsupport.Context()

	if err := reset.RequestOTP(ctx, " 9876543210 ", "Secret#123"); err != nil {
		t.Fatalf("request: %v", err)
	}
	want := []auth.ForgetOTPRequest{{Identifier: "9876543210", Password: "Secret#123", PhoneCode: auth.PhoneCode}}
	if diff := cmp.Diff(want, backend.forget); diff != "" {
		t.Fatalf("forget request mismatch (-want +got):\n%s", diff)
	}
	if expiry := reset.Expiry(); expiry.Seconds != 600 {
		t.Fatalf("expiry = %+v", expiry)
	}

	if err := reset.Verify(ctx, "111111"); !errors.Is(err, orchestrator.ErrInvalidOTP) {
		t.Fatalf("expected invalid otp, got %v", err)
	}
	if err := reset.Verify(ctx, "654321"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := backend.verify[len(backend.verify)-1]; got.OTP != 654321 || got.PhoneCode != auth.PhoneCode || got.Password != "Secret#123" {
		t.Fatalf("verify request %+v", got)
	}
	if expiry := reset.Expiry(); expiry.Active {
		t.Fatalf("expiry should be cleared after reset")
	}
}

func TestPasswordReset_ServerRateLimit(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(epoch)
	backend := &fakeResetter{forgetFn: func() error {
		return &auth.APIError{Op: auth.OpForgetOTP, Status: 429, Kind: auth.KindRateLimited, RetryAfter: 90 * time.Second}
	}}
	reset := orchestrator.NewPasswordReset(backend, orchestrator.WithResetClock(clock))
	defer reset.Close()
	ctx := testsupport.Context()

	if err := reset.RequestOTP(ctx, "asha@example.org", "Secret#123"); !errors.Is(err, orchestrator.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if status := reset.RateLimit(); !status.Limited || status.Seconds != 90 {
		t.Fatalf("status = %+v", status)
	}
	if err := reset.RequestOTP(ctx, "asha@example.org", "Secret#123"); !errors.Is(err, orchestrator.ErrRateLimited) {
		t.Fatalf("expected local refusal, got %v", err)
	}
	if len(backend.forget) != 1 {
		t.Fatalf("refused request reached the network")
	}

	clock.Set(epoch.Add(90 * time.Second))
	backend.forgetFn = nil
	if err := reset.RequestOTP(ctx, "asha@example.org", "Secret#123"); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}
