package voice

import (
	"testing"

	"github.com/oplcore/ymfdi/internal/opl"
	"github.com/oplcore/ymfdi/internal/opl/softchip"
	"github.com/oplcore/ymfdi/internal/patchbank"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	driver := opl.NewDriver([]opl.Chip{softchip.New()})
	return NewPool(driver, 1)
}

func TestFindNeverUsedFirst(t *testing.T) {
	p := newTestPool(t)
	v := p.Find(0, 60, nil, false)
	if v == nil || v.Used {
		t.Fatalf("expected an unused voice, got %#v", v)
	}
}

func TestVoiceStealingLargestDuration(t *testing.T) {
	p := newTestPool(t)
	patch := &patchbank.Patch{}

	// fill all 18 voices
	for i := 0; i < voicesPerChip; i++ {
		v := p.Find(0, uint8(60+i), patch, false)
		if v == nil {
			t.Fatalf("voice %d: Find returned nil", i)
		}
		p.Assign(v, patch, 0, 0, uint8(60+i), false)
		v.On = true
		v.JustChanged = false
		// stagger durations so later assertions are unambiguous
		v.Duration = uint32(i)
	}

	// 19th note-on: none are released (all On=true), so step 4 (same
	// patch, largest duration) should pick voice 17 (duration 17).
	steal := p.Find(0, 200, patch, false)
	if steal == nil {
		t.Fatal("Find returned nil on full pool")
	}
	if steal.Duration != 17 {
		t.Errorf("stole voice with duration %d, want 17 (largest among same-patch voices)", steal.Duration)
	}
}

func TestSilenceClearsOnAndSetsMaxDuration(t *testing.T) {
	p := newTestPool(t)
	v := &p.Voices[0]
	v.On = true
	p.Silence(v)
	if v.On {
		t.Error("Silence left On=true")
	}
	if !v.JustChanged {
		t.Error("Silence did not set JustChanged")
	}
	if v.Duration != ^uint32(0) {
		t.Errorf("Duration = %d, want max uint32", v.Duration)
	}
}

func Test4OpPairingSilencesPartner(t *testing.T) {
	p := newTestPool(t)
	patch := &patchbank.Patch{FourOp: true}

	primary := p.Find(0, 60, patch, true)
	if !isPrimarySlot(primary.Slot) {
		t.Fatalf("4-op allocation returned non-primary slot %d", primary.Slot)
	}
	p.Assign(primary, patch, 0, 0, 60, true)
	primary.On = true

	partnerSlot := pairSlot(primary.Slot)
	base := primary.Chip * voicesPerChip
	partner := &p.Voices[base+partnerSlot]
	partner.On = true

	p.Silence(primary)
	if partner.On {
		t.Error("silencing a 4-op primary left its partner sounding")
	}
}

func TestFourOpMaskReflectsPrimarySlots(t *testing.T) {
	p := newTestPool(t)
	patch := &patchbank.Patch{FourOp: true}

	v := p.Find(0, 60, patch, true)
	p.Assign(v, patch, 0, 0, 60, true)

	wantBit := -1
	for i, pr := range fourOpPairs {
		if pr[0] == v.Slot {
			wantBit = i
		}
	}
	if wantBit < 0 {
		t.Fatalf("slot %d is not a primary in fourOpPairs", v.Slot)
	}
	if p.fourOpMask[0]&(1<<uint(wantBit)) == 0 {
		t.Errorf("fourOpMask = %#x, bit %d not set", p.fourOpMask[0], wantBit)
	}
}
