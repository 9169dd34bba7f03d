package main

import (
	"fmt"
	"sync"
	"time"

	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

// consolePresenter renders every presentation surface as terminal
// output. It doubles as the alert sounder.
type consolePresenter struct {
	mu sync.Mutex
}

var (
	_ interfaces.Presenter    = (*consolePresenter)(nil)
	_ interfaces.AlertSounder = (*consolePresenter)(nil)
)

func newConsolePresenter() *consolePresenter {
	return &consolePresenter{}
}

func (p *consolePresenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Printf("[%s] ", time.Now().Format("15:04:05"))
	fmt.Printf(format+"\n", args...)
}

func (p *consolePresenter) Notify(message string) {
	p.printf("NOTICE  %s", message)
}

func (p *consolePresenter) Navigate(route interfaces.Route, arg string) {
	if arg != "" {
		p.printf("SCREEN  %s (%s)", route, arg)
		return
	}
	p.printf("SCREEN  %s", route)
}

func (p *consolePresenter) PresentInvitation(entry *types.WaitlistEntry) {
	deadline := "no deadline"
	if entry.ResponseDeadline != nil {
		deadline = fmt.Sprintf("respond by %s", entry.ResponseDeadline.Local().Format("15:04:05"))
	}
	p.printf("INVITE  %s is available for %s (%s)", entry.ProviderName, entry.Action, deadline)
}

func (p *consolePresenter) DismissInvitation() {
	p.printf("INVITE  dismissed")
}

func (p *consolePresenter) PromptLowBalance(secondsLeft int) {
	p.printf("BALANCE %ds left, recharge to continue", secondsLeft)
}

func (p *consolePresenter) ShowRechargeButton() {
	p.printf("BALANCE recharge available")
}

func (p *consolePresenter) PromptRating(summary *types.OrderSummary) {
	p.printf("RATING  order %s with %s ended, amount %.2f", summary.OrderID, summary.ProviderName, summary.AmountCharged)
}

func (p *consolePresenter) Play() {
	p.printf("SOUND   ring")
}

func (p *consolePresenter) Stop() {
	p.printf("SOUND   stop")
}

func (p *consolePresenter) printMessage(msg types.ChatMessage) {
	p.printf("MESSAGE %s: %s", msg.Sender, msg.Content)
}

func (p *consolePresenter) printChunk(chunk string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Print(chunk)
}
