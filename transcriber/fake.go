package transcriber

import "context"

// FakeEngine returns scripted results, one per call, repeating the last
// entry once the script runs out. Devices listed in FailDevices always
// error, which is how tests exercise the fallback path.
type FakeEngine struct {
	Script      []Raw
	Err         error
	FailDevices map[string]error

	Calls []Request
	next  int
}

func (f *FakeEngine) Name() string { return "fake" }

func (f *FakeEngine) Transcribe(_ context.Context, req Request) (Raw, error) {
	f.Calls = append(f.Calls, req)
	if err, ok := f.FailDevices[req.Device]; ok {
		return Raw{}, err
	}
	if f.Err != nil {
		return Raw{}, f.Err
	}
	if len(f.Script) == 0 {
		return Raw{}, nil
	}
	i := f.next
	if i >= len(f.Script) {
		i = len(f.Script) - 1
	}
	f.next++
	return f.Script[i], nil
}
