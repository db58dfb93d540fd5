package floor

import "testing"

func TestWakeOpensChatAndRearms(t *testing.T) {
	f := New()
	f.OnPlaybackStarted()
	d := f.OnWake()
	if !d.Dictate || !d.Rearm || d.Suppressed || d.Reason != "wake" {
		t.Fatalf("expected dictation re-arm on wake, got %+v", d)
	}
	d = f.OnClose()
	if d.Dictate || !d.Rearm {
		t.Fatalf("expected wake listening re-arm on close, got %+v", d)
	}
}

func TestNoRearmWhilePaused(t *testing.T) {
	f := New()
	d := f.OnChatOpened()
	if d.Rearm {
		t.Fatalf("should not re-arm before playback, got %+v", d)
	}
	f.OnPlaybackStarted()
	f.OnPlaybackPaused()
	if d := f.OnChatClosed(); d.Rearm {
		t.Fatalf("should not re-arm while paused, got %+v", d)
	}
}

func TestReplyPendingSuppresses(t *testing.T) {
	f := New()
	f.OnPlaybackStarted()
	f.OnWake()
	d := f.OnDictation()
	if !d.Suppressed || d.Rearm || !d.Dictate {
		t.Fatalf("expected suppression while reply pending, got %+v", d)
	}
	d = f.OnReply()
	if d.Suppressed {
		t.Fatalf("reply should release the mic, got %+v", d)
	}
}

func TestPTTAndReplyBothHoldTheMic(t *testing.T) {
	f := New()
	f.OnPlaybackStarted()
	f.OnPTTStart()
	f.OnDictation()
	if d := f.OnPTTEnd(); !d.Suppressed {
		t.Fatalf("reply still pending, expected suppression, got %+v", d)
	}
	if d := f.OnReply(); d.Suppressed {
		t.Fatalf("expected release, got %+v", d)
	}
}

func TestPausedPageStaysSuppressed(t *testing.T) {
	f := New()
	f.OnPlaybackStarted()
	if d := f.OnPlaybackPaused(); !d.Suppressed || d.Rearm {
		t.Fatalf("pause should hold the mic, got %+v", d)
	}
	f.OnPTTStart()
	if d := f.OnPTTEnd(); !d.Suppressed {
		t.Fatalf("ptt release while paused must not free the mic, got %+v", d)
	}
	f.OnDictation()
	if d := f.OnReply(); !d.Suppressed {
		t.Fatalf("reply while paused must not free the mic, got %+v", d)
	}
	if d := f.OnPlaybackStarted(); d.Suppressed || !d.Rearm {
		t.Fatalf("playback should release and re-arm, got %+v", d)
	}
}
