package ekf

import (
	"errors"
	"math"
	"testing"

	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/params"
)

const (
	originLat = 45.5152
	originLon = -122.6784
	originAlt = 15.0
	gravity   = 9.80665
)

var still = [3]float64{0, 0, gravity}

func newTestEKF() *EKF {
	return NewWithOrigin(params.DefaultFilterConfig(), params.DefaultGateConfig(),
		originLat, originLon, originAlt)
}

func TestPredictKeepsQuatUnitNorm(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 500; i++ {
		if err := f.Predict([3]float64{0.1, -0.05, gravity}, [3]float64{0.01, 0.02, -0.03}, 0.01); err != nil {
			t.Fatal(err)
		}
	}
	q := f.State().Quat
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if math.Abs(n-1) > 1e-9 {
		t.Errorf("quat norm after 500 predicts: %v", n)
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	f := newTestEKF()
	before := f.State()

	if err := f.Predict([3]float64{math.NaN(), 0, 0}, [3]float64{}, 0.01); !errors.Is(err, filter.ErrBadInput) {
		t.Errorf("expected ErrBadInput, got %v", err)
	}
	if err := f.Predict(still, [3]float64{}, 0); !errors.Is(err, filter.ErrBadInput) {
		t.Errorf("expected ErrBadInput for zero dt, got %v", err)
	}

	after := f.State()
	if before.Position != after.Position || before.Quat != after.Quat {
		t.Error("state mutated by rejected predict")
	}
}

func TestGPSUpdateShrinksPositionUncertainty(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 50; i++ {
		if err := f.Predict(still, [3]float64{}, 0.01); err != nil {
			t.Fatal(err)
		}
	}
	before := f.State().PosVar

	out := f.UpdateGPSPosition(filter.GPSPosition{
		Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 5,
	})
	if !out.Applied() {
		t.Fatalf("fix at origin not applied: %v (nis=%v)", out.Status, out.NIS)
	}
	after := f.State().PosVar
	if after >= before {
		t.Errorf("position variance did not shrink: %v -> %v", before, after)
	}
	if out.NIS < 0 || out.NIS > 12 {
		t.Errorf("NIS out of plausible band: %v", out.NIS)
	}
}

func TestRepeatedFixesConvergePosition(t *testing.T) {
	f := newTestEKF()
	var lastVar float64
	for i := 0; i < 20; i++ {
		for j := 0; j < 10; j++ {
			if err := f.Predict(still, [3]float64{}, 0.01); err != nil {
				t.Fatal(err)
			}
		}
		out := f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
		if !out.Applied() {
			t.Fatalf("fix %d rejected (nis=%v)", i, out.NIS)
		}
		lastVar = f.State().PosVar
	}
	if lastVar > 30 {
		t.Errorf("position variance after 20 fixes: %v", lastVar)
	}
	p := f.State()
	if math.Abs(p.Lat-originLat) > 1e-4 || math.Abs(p.Lon-originLon) > 1e-4 {
		t.Errorf("estimate strayed from the fixes: %v %v", p.Lat, p.Lon)
	}
}

func TestGateRejectsOutlierAndLeavesStateUntouched(t *testing.T) {
	f := newTestEKF()
	// Converge near the origin first.
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			_ = f.Predict(still, [3]float64{}, 0.01)
		}
		f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
	}
	before := f.State()

	// A fix ~1.1km north with claimed 3m accuracy is a gross outlier.
	out := f.UpdateGPSPosition(filter.GPSPosition{
		Lat: originLat + 0.01, Lon: originLon, Alt: originAlt, Accuracy: 3,
	})
	if out.Status != filter.Rejected {
		t.Fatalf("outlier not rejected: %v (nis=%v)", out.Status, out.NIS)
	}
	if out.Streak != 1 {
		t.Errorf("streak: got %d want 1", out.Streak)
	}
	after := f.State()
	if before.Position != after.Position || before.Velocity != after.Velocity {
		t.Error("rejected update mutated the state")
	}
}

func TestForcedUpdateBypassesGate(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			_ = f.Predict(still, [3]float64{}, 0.01)
		}
		f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
	}
	out := f.UpdateGPSPosition(filter.GPSPosition{
		Lat: originLat + 0.01, Lon: originLon, Alt: originAlt, Accuracy: 3, Force: true,
	})
	if out.Status != filter.Forced {
		t.Fatalf("forced fix: got %v", out.Status)
	}
	p := f.State()
	if p.Position[1] < 100 {
		t.Errorf("forced fix did not move the estimate north: %v", p.Position[1])
	}
}

func TestRejectionStreakAccumulatesAndResets(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			_ = f.Predict(still, [3]float64{}, 0.01)
		}
		f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
	}
	for i := 1; i <= 3; i++ {
		out := f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat + 0.01, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
		if out.Status != filter.Rejected || out.Streak != i {
			t.Fatalf("rejection %d: status=%v streak=%d", i, out.Status, out.Streak)
		}
	}
	out := f.UpdateGPSPosition(filter.GPSPosition{
		Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
	})
	if !out.Applied() {
		t.Fatalf("in-gate fix after streak not applied: %v", out.Status)
	}
	if got := f.State().RejectionStreaks["gps_position"]; got != 0 {
		t.Errorf("streak not reset: %d", got)
	}
}

func TestWidenGateAdmitsMarginalFix(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 20; i++ {
		for j := 0; j < 10; j++ {
			_ = f.Predict(still, [3]float64{}, 0.01)
		}
		f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 3,
		})
	}
	// Find a fix just outside the tuned gate.
	marginal := filter.GPSPosition{
		Lat: originLat + 0.0004, Lon: originLon, Alt: originAlt, Accuracy: 3,
	}
	out := f.UpdateGPSPosition(marginal)
	if out.Status != filter.Rejected {
		t.Skipf("fix unexpectedly in gate (nis=%v); tuning changed", out.NIS)
	}
	for i := 0; i < 6; i++ {
		f.WidenGate()
	}
	out = f.UpdateGPSPosition(marginal)
	if !out.Applied() {
		t.Errorf("widened gate still rejects (nis=%v)", out.NIS)
	}
	f.ResetGate()
}

func TestZUPTDampsVelocity(t *testing.T) {
	f := newTestEKF()
	// Inject a spurious velocity through biased accel predicts.
	for i := 0; i < 100; i++ {
		_ = f.Predict([3]float64{0.5, 0, gravity}, [3]float64{}, 0.01)
	}
	if f.State().Speed() < 0.1 {
		t.Fatal("setup: no velocity accumulated")
	}
	for i := 0; i < 10; i++ {
		out := f.ApplyZUPT()
		if out.Status == filter.Failed || out.Status == filter.Invalid {
			t.Fatalf("zupt failed: %v", out.Err)
		}
	}
	if got := f.State().Speed(); got > 0.05 {
		t.Errorf("speed after repeated ZUPT: %v", got)
	}
}

func TestNHCSkippedWhenDisabled(t *testing.T) {
	cfg := params.DefaultFilterConfig()
	cfg.NHCEnabled = false
	f := NewWithOrigin(cfg, params.DefaultGateConfig(), originLat, originLon, originAlt)
	if out := f.ApplyNHC(); out.Status != filter.Skipped {
		t.Errorf("NHC while disabled: got %v want skipped", out.Status)
	}
}

func TestNHCConstrainsLateralVelocity(t *testing.T) {
	cfg := params.DefaultFilterConfig()
	cfg.NHCEnabled = true
	f := NewWithOrigin(cfg, params.DefaultGateConfig(), originLat, originLon, originAlt)

	// Sideways push: body y accel with identity orientation.
	for i := 0; i < 100; i++ {
		_ = f.Predict([3]float64{0, 0.5, gravity}, [3]float64{}, 0.01)
	}
	before := math.Abs(f.State().Velocity[1])
	for i := 0; i < 10; i++ {
		out := f.ApplyNHC()
		if out.Status == filter.Failed {
			t.Fatalf("nhc failed: %v", out.Err)
		}
	}
	after := math.Abs(f.State().Velocity[1])
	if after >= before {
		t.Errorf("lateral velocity not constrained: %v -> %v", before, after)
	}
}

func TestInvalidObservationsRejectedAtBoundary(t *testing.T) {
	f := newTestEKF()
	cases := []filter.GPSPosition{
		{Lat: 91, Lon: 0, Alt: 0, Accuracy: 5},
		{Lat: 0, Lon: 181, Alt: 0, Accuracy: 5},
		{Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 0},
		{Lat: math.NaN(), Lon: originLon, Alt: originAlt, Accuracy: 5},
	}
	for i, c := range cases {
		if out := f.UpdateGPSPosition(c); out.Status != filter.Invalid {
			t.Errorf("case %d: got %v want invalid", i, out.Status)
		}
	}
	if out := f.UpdateGPSVelocity(filter.GPSVelocity{East: math.Inf(1), Accuracy: 1}); out.Status != filter.Invalid {
		t.Errorf("velocity: got %v want invalid", out.Status)
	}
	if out := f.UpdateHeading(filter.Heading{Radians: math.NaN(), Sigma: 0.1}); out.Status != filter.Invalid {
		t.Errorf("heading: got %v want invalid", out.Status)
	}
}

func TestFirstFixAnchorsLocalFrame(t *testing.T) {
	f := New(params.DefaultFilterConfig(), params.DefaultGateConfig())
	out := f.UpdateGPSPosition(filter.GPSPosition{
		Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 5,
	})
	if !out.Applied() {
		t.Fatalf("first fix: %v", out.Status)
	}
	p := f.State()
	if math.Abs(p.Lat-originLat) > 1e-6 || math.Abs(p.Lon-originLon) > 1e-6 {
		t.Errorf("origin not anchored at first fix: %v %v", p.Lat, p.Lon)
	}
}

func TestHeadingUpdateCorrectsYaw(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 50; i++ {
		_ = f.Predict(still, [3]float64{}, 0.01)
	}
	target := 0.3
	for i := 0; i < 20; i++ {
		out := f.UpdateHeading(filter.Heading{Radians: target, Sigma: 0.2})
		if out.Status == filter.Failed || out.Status == filter.Invalid {
			t.Fatalf("heading update: %v (%v)", out.Status, out.Err)
		}
	}
	if got := f.State().Yaw(); math.Abs(got-target) > 0.1 {
		t.Errorf("yaw after heading updates: got %v want ~%v", got, target)
	}
}

func TestCovarianceStaysSymmetric(t *testing.T) {
	f := newTestEKF()
	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			_ = f.Predict([3]float64{0.1, 0.1, gravity}, [3]float64{0.01, 0, 0.02}, 0.01)
		}
		f.UpdateGPSPosition(filter.GPSPosition{
			Lat: originLat, Lon: originLon, Alt: originAlt, Accuracy: 4,
		})
	}
	P := f.Covariance()
	n := P.SymmetricDim()
	for i := 0; i < n; i++ {
		if P.At(i, i) <= 0 {
			t.Errorf("P[%d][%d] non-positive: %v", i, i, P.At(i, i))
		}
	}
}
