package spark

import "github.com/satriahrh/sparkchat/domain/entities"

// Listener receives the lifecycle events of a client's sessions. Callbacks
// run on the sending goroutine or the session's reader goroutine, and on the
// goroutine calling Close. The client lock is never held during a callback,
// so a listener may query the client.
type Listener interface {
	OnConnect()
	// OnMessage carries only the new fragment, not the accumulated content.
	OnMessage(fragment string, frame *Response)
	OnComplete(content string, conversation []entities.Turn)
	OnError(err error)
	OnClose()
	OnStatusChange(state entities.SessionState)
}

// UsageListener is optionally implemented by a Listener to receive the token
// usage reported on the final frame of a completed session.
type UsageListener interface {
	OnUsage(usage Usage)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnConnect() {}
func (NopListener) OnMessage(string, *Response) {}
func (NopListener) OnComplete(string, []entities.Turn) {}
func (NopListener) OnError(error) {}
func (NopListener) OnClose() {}
func (NopListener) OnStatusChange(state entities.SessionState) {}

// ListenerFuncs adapts optional funcs to a Listener; nil fields are skipped
type ListenerFuncs struct {
	Connect      func()
	Message      func(fragment string, frame *Response)
	Complete     func(content string, conversation []entities.Turn)
	Error        func(err error)
	Close        func()
	StatusChange func(state entities.SessionState)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) OnConnect() {
	if f.Connect != nil {
		f.Connect()
	}
}

func (f ListenerFuncs) OnMessage(fragment string, frame *Response) {
	if f.Message != nil {
		f.Message(fragment, frame)
	}
}

func (f ListenerFuncs) OnComplete(content string, conversation []entities.Turn) {
	if f.Complete != nil {
		f.Complete(content, conversation)
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ListenerFuncs) OnClose() {
	if f.Close != nil {
		f.Close()
	}
}

func (f ListenerFuncs) OnStatusChange(state entities.SessionState) {
	if f.StatusChange != nil {
		f.StatusChange(state)
	}
}
