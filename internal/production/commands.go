package production

import (
	"context"
	"time"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/repository"
)

// Command is one board mutation. Apply validates and then mutates the board;
// it must leave the board untouched when it returns an error. Persist writes
// the change to the store. Compensate puts back everything Apply touched.
type Command interface {
	Name() string
	Apply(b *Board, now time.Time) error
	Persist(ctx context.Context, store repository.Store) error
	Compensate(b *Board)
}

// committer is implemented by commands that fold the store's answer back
// into the board once the write succeeded
type committer interface {
	Commit(b *Board)
}

type orderImage struct {
	id    string
	order *models.Order
}

type ovenImage struct {
	index int
	oven  Oven
}

type countdownImage struct {
	mixer   int
	at      time.Time
	present bool
}

// undoLog records before-images of what a command touches. Commands embed it
// and get Compensate for free.
type undoLog struct {
	orders     []orderImage
	ovens      []ovenImage
	countdowns []countdownImage
	daily      *int
	day        string
}

func (u *undoLog) saveOrder(b *Board, id string) {
	for _, img := range u.orders {
		if img.id == id {
			return
		}
	}

	u.orders = append(u.orders, orderImage{id: id, order: b.Orders[id].Clone()})
}

func (u *undoLog) saveOven(b *Board, n int) {
	for _, img := range u.ovens {
		if img.index == n-1 {
			return
		}
	}

	u.ovens = append(u.ovens, ovenImage{index: n - 1, oven: b.Ovens[n-1].Clone()})
}

func (u *undoLog) saveAllOvens(b *Board) {
	for n := 1; n <= OvenCount; n++ {
		u.saveOven(b, n)
	}
}

func (u *undoLog) saveDaily(b *Board) {
	if u.daily != nil {
		return
	}

	completed := b.DailyCompleted
	u.daily = &completed
	u.day = b.Day
}

func (u *undoLog) saveCountdown(b *Board, mixer int) {
	at, present := b.MixerCountdowns[mixer]
	u.countdowns = append(u.countdowns, countdownImage{mixer: mixer, at: at, present: present})
}

// Compensate restores the before-images, newest first
func (u *undoLog) Compensate(b *Board) {
	for i := len(u.countdowns) - 1; i >= 0; i-- {
		img := u.countdowns[i]

		if img.present {
			b.MixerCountdowns[img.mixer] = img.at
		} else {
			delete(b.MixerCountdowns, img.mixer)
		}
	}

	for i := len(u.ovens) - 1; i >= 0; i-- {
		img := u.ovens[i]
		b.Ovens[img.index] = img.oven.Clone()
	}

	for i := len(u.orders) - 1; i >= 0; i-- {
		img := u.orders[i]

		if img.order == nil {
			delete(b.Orders, img.id)
		} else {
			b.Orders[img.id] = img.order.Clone()
		}
	}

	if u.daily != nil {
		b.DailyCompleted = *u.daily
		b.Day = u.day
	}
}

// localOnly is embedded by commands that never reach the store
type localOnly struct{}

func (localOnly) Persist(ctx context.Context, store repository.Store) error {
	return nil
}
