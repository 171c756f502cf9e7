package plug

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRedisStateKey   = "plug"
	DefaultRedisCommandKey = "plug:command"

	redisStateField = "state"
	redisTimeout    = 3 * time.Second
)

// RedisDevice talks to a plug bridge through Redis. The bridge publishes the
// outlet state in the "state" field of a hash and pops "on"/"off" commands
// from a list.
type RedisDevice struct {
	client     *redis.Client
	stateKey   string
	commandKey string

	on bool
}

var _ Device = &RedisDevice{}

func NewRedisDevice(addr, stateKey, commandKey string) *RedisDevice {
	if stateKey == "" {
		stateKey = DefaultRedisStateKey
	}
	if commandKey == "" {
		commandKey = DefaultRedisCommandKey
	}

	return &RedisDevice{
		client:     redis.NewClient(&redis.Options{Addr: addr}),
		stateKey:   stateKey,
		commandKey: commandKey,
	}
}

func (r *RedisDevice) Refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	v, err := r.client.HGet(ctx, r.stateKey, redisStateField).Result()
	if errors.Is(err, redis.Nil) {
		return pkgerrors.Errorf("plug bridge has not reported a state in %s", r.stateKey)
	}
	if err != nil {
		return pkgerrors.Wrap(err, "failed to read plug state")
	}

	on, err := ParseState(v)
	if err != nil {
		return err
	}
	r.on = on
	return nil
}

func (r *RedisDevice) IsOn() bool {
	return r.on
}

func (r *RedisDevice) TurnOn() error {
	return r.command("on")
}

func (r *RedisDevice) TurnOff() error {
	return r.command("off")
}

func (r *RedisDevice) command(cmd string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := r.client.LPush(ctx, r.commandKey, cmd).Err(); err != nil {
		return pkgerrors.Wrapf(err, "failed to send %q to plug bridge", cmd)
	}
	logrus.WithFields(logrus.Fields{"key": r.commandKey, "command": cmd}).Debug("sent plug command")
	return nil
}

func (r *RedisDevice) Close() error {
	return r.client.Close()
}
