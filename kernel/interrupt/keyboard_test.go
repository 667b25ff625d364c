package interrupt

import "testing"

func TestKeyboardLowerCaseLetter(t *testing.T) {
	var k Keyboard
	k.onScanCode(0x1E) // 'a'
	ch, ok := popKey(&k)
	if !ok || ch != 'a' {
		t.Fatalf("got %q, %v, want 'a', true", ch, ok)
	}
}

func TestKeyboardShiftUppercases(t *testing.T) {
	var k Keyboard
	k.onScanCode(scLeftShift)
	k.onScanCode(0x1E) // 'a' -> 'A' while shift held
	ch, ok := popKey(&k)
	if !ok || ch != 'A' {
		t.Fatalf("got %q, %v, want 'A', true", ch, ok)
	}
}

func TestKeyboardShiftReleaseRestoresLowerCase(t *testing.T) {
	var k Keyboard
	k.onScanCode(scLeftShift)
	k.onScanCode(scLeftShift | breakBit)
	k.onScanCode(0x1E)
	ch, _ := popKey(&k)
	if ch != 'a' {
		t.Fatalf("got %q, want 'a' after shift release", ch)
	}
}

func TestKeyboardCapsLockTogglesAndPersists(t *testing.T) {
	var k Keyboard
	k.onScanCode(scCapsLock)
	k.onScanCode(0x1E)
	ch, _ := popKey(&k)
	if ch != 'A' {
		t.Fatalf("got %q, want 'A' under caps lock", ch)
	}
	// caps lock is a toggle, not held like shift: the break code must not undo it.
	k.onScanCode(scCapsLock | breakBit)
	k.onScanCode(0x1E)
	ch, _ = popKey(&k)
	if ch != 'A' {
		t.Fatalf("got %q, want 'A': the caps lock break code must not turn it off", ch)
	}
}

func TestKeyboardShiftAndCapsLockCancel(t *testing.T) {
	var k Keyboard
	k.onScanCode(scCapsLock)
	k.onScanCode(scLeftShift)
	k.onScanCode(0x1E)
	ch, _ := popKey(&k)
	if ch != 'a' {
		t.Fatalf("got %q, want 'a' when shift and caps lock cancel out", ch)
	}
}

func TestKeyboardLeftCtrlProducesControlCharacter(t *testing.T) {
	var k Keyboard
	k.onScanCode(scLeftCtrl)
	k.onScanCode(0x23) // 'h'
	ch, _ := popKey(&k)
	if ch != 0x08 {
		t.Fatalf("ctrl-h = %#x, want 0x08", ch)
	}
}

func TestKeyboardSingleSlotOverwritesUnconsumedKey(t *testing.T) {
	var k Keyboard
	k.onScanCode(0x1E) // 'a', never consumed
	k.onScanCode(0x1F) // 's'
	ch, ok := popKey(&k)
	if !ok || ch != 's' {
		t.Fatalf("got %q, %v, want the most recent key 's'", ch, ok)
	}
	if _, ok := popKey(&k); ok {
		t.Fatalf("slot should be empty after one pop")
	}
}

func popKey(k *Keyboard) (byte, bool) {
	if !k.hasKey {
		return 0, false
	}
	ch := k.pending
	k.hasKey = false
	return ch, true
}
