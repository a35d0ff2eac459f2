package redis

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// nsHook prefixes keys with the configured namespace. Only the key-bearing
// commands issued by the session binder and health checks are rewritten.
type nsHook struct {
	namespace string
}

func (h *nsHook) appendNamespace(key interface{}) string {
	k := fmt.Sprint(key)
	if strings.HasPrefix(k, h.namespace+":") {
		return k
	}

	return fmt.Sprintf("%s:%s", h.namespace, k)
}

func (h *nsHook) updateCmd(cmd redis.Cmder) {
	if len(cmd.Args()) <= 1 {
		return
	}

	switch cmd.Name() {
	case "expire", "pexpire", "persist", "pttl", "ttl", "type", "get", "getset",
		"getex", "getdel", "incr", "incrby", "set", "setex", "setnx":
		cmd.Args()[1] = h.appendNamespace(cmd.Args()[1])
	case "del", "unlink", "exists", "touch", "mget":
		for i := 1; i < len(cmd.Args()); i++ {
			cmd.Args()[i] = h.appendNamespace(cmd.Args()[i])
		}
	case "mset", "msetnx":
		for i := 1; i < len(cmd.Args()); i += 2 {
			cmd.Args()[i] = h.appendNamespace(cmd.Args()[i])
		}
	}
}

func (h *nsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *nsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if len(h.namespace) > 0 {
			h.updateCmd(cmd)
		}

		return next(ctx, cmd)
	}
}

func (h *nsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmd []redis.Cmder) error {
		if len(h.namespace) > 0 {
			for _, c := range cmd {
				h.updateCmd(c)
			}
		}

		return next(ctx, cmd)
	}
}
