//go:build ruleguard

// Package gorules contains project specific linting rules for golangci-lint
// via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done goroutine pattern. Helper
// goroutines in this module are started with wg.Go so shutdown can wait on
// them without counting mistakes.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    serve()
//	}()
//
// becomes
//
//	wg.Go(func() {
//	    serve()
//	})
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of Add(1) with defer Done()").
		Suggest("$wg.Go(func() { $body })")
}

// StdErrorsInInternal flags the standard errors constructors inside internal
// packages. Errors there are built with internal/errors so they carry a
// component and a category.
func StdErrorsInInternal(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") && m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("build errors with internal/errors, e.g. errors.New(errors.NewStd($msg)).Component(...).Build()")
}

// PrintInInternal flags direct console output from internal packages, which
// must go through the structured logger.
func PrintInInternal(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `fmt.Print($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the structured logger instead of printing to the console")
}

// UnbufferedSignalChannel detects signal.Notify on an unbuffered channel,
// which can drop the signal that asks the capture loop to stop.
func UnbufferedSignalChannel(m dsl.Matcher) {
	m.Match(`signal.Notify(make(chan os.Signal), $*_)`).
		Report("signal.Notify needs a buffered channel, use make(chan os.Signal, 1)")
}

// TimerChannelLen detects len() on timer and ticker channels, which are
// unbuffered since Go 1.23 so the check is always zero.
func TimerChannelLen(m dsl.Matcher) {
	m.Match(`len($t.C)`).
		Where(m["t"].Type.Is("*time.Timer") || m["t"].Type.Is("*time.Ticker")).
		Report("len() on a timer or ticker channel is always 0, use a non-blocking select")
}

// SleepInTests flags time.Sleep in tests. Tests wait on channels or use
// require.Eventually so they stay fast and deterministic.
func SleepInTests(m dsl.Matcher) {
	m.Match(`time.Sleep($_)`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("avoid time.Sleep in tests, wait on a channel or use require.Eventually")
}
