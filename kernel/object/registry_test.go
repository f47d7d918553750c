package object

import "testing"

type fakeObject struct{ kind Kind }

func (f *fakeObject) Kind() Kind { return f.kind }

// TestRegisterLookupRoundTrip checks the basic round trip:
// register -> lookup(with full rights) -> object yields the same object.
func TestRegisterLookupRoundTrip(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindSurface}

	h := r.Register(obj, 1, RightRead|RightWrite|RightShare|RightDelete)

	got, err := r.Lookup(h, 1, RightRead|RightWrite)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != obj {
		t.Fatal("Lookup returned a different object than was registered")
	}
}

// TestCapabilityTransferPreservesOrigin checks that when process A
// creates a Surface and transfers a restricted capability to B, A retains
// its own full rights.
func TestCapabilityTransferPreservesOrigin(t *testing.T) {
	r := NewRegistry()
	const (
		processA ProcessID = 1
		processB ProcessID = 2
	)
	obj := &fakeObject{kind: KindSurface}
	full := RightRead | RightWrite | RightShare | RightDelete

	h := r.Register(obj, processA, full)

	if err := r.Transfer(h, processA, processB, RightRead); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	aRights, ok := r.Rights(h, processA)
	if !ok || aRights != full {
		t.Fatalf("A's rights after transfer = %v, %v; want %v, true", aRights, ok, full)
	}

	if _, err := r.Lookup(h, processB, RightWrite); err != ErrInsufficientRights {
		t.Fatalf("B's write lookup error = %v, want ErrInsufficientRights", err)
	}
	if _, err := r.Lookup(h, processA, RightWrite); err != nil {
		t.Fatalf("A's write lookup failed: %v", err)
	}
}

func TestTransferRequiresShareRight(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindBuffer}
	h := r.Register(obj, 1, RightRead|RightWrite) // no RightShare

	if err := r.Transfer(h, 1, 2, RightRead); err != ErrInsufficientRights {
		t.Fatalf("Transfer without SHARE = %v, want ErrInsufficientRights", err)
	}
}

func TestTransferRejectsRightAmplification(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindBuffer}
	h := r.Register(obj, 1, RightRead|RightShare)

	if err := r.Transfer(h, 1, 2, RightRead|RightWrite); err != ErrRightAmplification {
		t.Fatalf("Transfer amplifying rights = %v, want ErrRightAmplification", err)
	}
}

// TestRevokeLeavesOtherCapabilityIntact checks that after
// transfer(h, p, q, r); revoke(h, q), p's capability is still intact.
func TestRevokeLeavesOtherCapabilityIntact(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindBuffer}
	h := r.Register(obj, 1, RightRead|RightShare)

	if err := r.Transfer(h, 1, 2, RightRead); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if err := r.Revoke(h, 2); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := r.Lookup(h, 1, RightRead); err != nil {
		t.Fatalf("process 1's capability did not survive process 2's revoke: %v", err)
	}
}

func TestRevokeLastCapabilityDropsObject(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindDisplay}
	h := r.Register(obj, 1, RightRead)

	if err := r.Revoke(h, 1); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := r.Lookup(h, 1, RightRead); err != ErrUnknownHandle {
		t.Fatalf("Lookup after last revoke = %v, want ErrUnknownHandle", err)
	}
}

func TestLookupUnknownProcessAndHandle(t *testing.T) {
	r := NewRegistry()
	obj := &fakeObject{kind: KindSurface}
	h := r.Register(obj, 1, RightRead)

	if _, err := r.Lookup(h, 99, RightRead); err != ErrUnknownProcess {
		t.Fatalf("Lookup from unregistered process = %v, want ErrUnknownProcess", err)
	}
	if _, err := r.Lookup(Handle(9999), 1, RightRead); err != ErrUnknownHandle {
		t.Fatalf("Lookup of unknown handle = %v, want ErrUnknownHandle", err)
	}
}

// TestHandlesAreMonotonicAndNeverReused checks that handles strictly
// increase and are never returned twice, even across an object being
// dropped.
func TestHandlesAreMonotonicAndNeverReused(t *testing.T) {
	r := NewRegistry()
	seen := map[Handle]bool{}

	for i := 0; i < 8; i++ {
		obj := &fakeObject{kind: KindBuffer}
		h := r.Register(obj, 1, RightRead)
		if seen[h] {
			t.Fatalf("handle %d issued twice", h)
		}
		seen[h] = true
		r.Revoke(h, 1)
	}
}

func TestEventStreamPollFIFOOrder(t *testing.T) {
	var s EventStream
	s.Push(InputEvent{Kind: EventKeyPress, Key: 'a'})
	s.Push(InputEvent{Kind: EventKeyPress, Key: 'b'})

	first, ok := s.Poll()
	if !ok || first.Key != 'a' {
		t.Fatalf("first poll = %+v, %v; want key 'a', true", first, ok)
	}
	second, ok := s.Poll()
	if !ok || second.Key != 'b' {
		t.Fatalf("second poll = %+v, %v; want key 'b', true", second, ok)
	}
	if _, ok := s.Poll(); ok {
		t.Fatal("poll on empty stream should report ok=false")
	}
}

func TestSurfaceAttachCommitDamage(t *testing.T) {
	var s Surface
	s.Attach(Handle(7))

	buf, ok := s.AttachedBuffer()
	if !ok || buf != Handle(7) {
		t.Fatalf("AttachedBuffer = %v, %v; want 7, true", buf, ok)
	}
	if s.Committed() {
		t.Fatal("surface should not be committed before Commit is called")
	}

	s.AddDamage(Rect{X: 1, Y: 2, Width: 3, Height: 4})
	drained := s.Commit()

	if !s.Committed() {
		t.Fatal("surface should be committed after Commit")
	}
	if len(drained) != 1 || drained[0] != (Rect{X: 1, Y: 2, Width: 3, Height: 4}) {
		t.Fatalf("Commit snapshot = %+v, want the one added rect", drained)
	}
	if len(s.Damage()) != 0 {
		t.Fatal("Commit should clear accumulated damage")
	}
}

func TestDisplayClaimExclusivity(t *testing.T) {
	var d Display
	if !d.Claim(1) {
		t.Fatal("first claim should succeed")
	}
	if d.Claim(2) {
		t.Fatal("second process should not be able to claim an already-claimed display")
	}
	d.Release(1)
	if !d.Claim(2) {
		t.Fatal("claim should succeed once the prior owner releases")
	}
}
