package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JokanderTest/CVX/internal/domain"
)

// PendingRegistrationStore guarda altas en curso en el store efimero, clavadas
// por email normalizado bajo pending_signup:<email>. Toda mutacion
// read-modify-write corre como script atomico en el servidor: dos verify o
// resend concurrentes nunca pisan los contadores del otro.
type PendingRegistrationStore interface {
	Create(ctx context.Context, pending domain.PendingRegistration, ttl time.Duration) error
	Get(ctx context.Context, email string) (domain.PendingRegistration, error)
	Verify(ctx context.Context, email, codeHash string, maxAttempts int) (domain.PendingRegistration, error)
	Resend(ctx context.Context, email, newCodeHash string, maxResends int, ttl time.Duration, now time.Time) (int, error)
	Delete(ctx context.Context, email string) error
}

// verifyPendingScript consume un intento de codigo de forma atomica.
// KEYS[1] = registro pendiente
// ARGV[1] = hash del codigo presentado
// ARGV[2] = maximo de intentos
// Respuestas: {"ok", json} | {"not_found"} | {"exhausted"} | {"invalid", restantes}
const verifyPendingScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {"not_found"}
end
local rec = cjson.decode(data)
local max = tonumber(ARGV[2])
if rec.attempts >= max then
  redis.call("DEL", KEYS[1])
  return {"exhausted"}
end
if rec.code_hash ~= ARGV[1] then
  rec.attempts = rec.attempts + 1
  if rec.attempts >= max then
    redis.call("DEL", KEYS[1])
    return {"exhausted"}
  end
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl <= 0 then
    redis.call("DEL", KEYS[1])
    return {"not_found"}
  end
  redis.call("SET", KEYS[1], cjson.encode(rec), "PX", ttl)
  return {"invalid", max - rec.attempts}
end
redis.call("DEL", KEYS[1])
return {"ok", data}
`

// resendPendingScript renueva el codigo de un alta pendiente de forma atomica.
// KEYS[1] = registro pendiente
// ARGV[1] = hash del codigo nuevo
// ARGV[2] = maximo de reenvios
// ARGV[3] = TTL nuevo en segundos
// ARGV[4] = timestamp de creacion nuevo (RFC3339)
// Respuestas: {"ok", reenvios} | {"not_found"} | {"limit"}
const resendPendingScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {"not_found"}
end
local rec = cjson.decode(data)
if rec.resends >= tonumber(ARGV[2]) then
  return {"limit"}
end
rec.resends = rec.resends + 1
rec.attempts = 0
rec.code_hash = ARGV[1]
rec.created_at = ARGV[4]
redis.call("SET", KEYS[1], cjson.encode(rec), "EX", ARGV[3])
return {"ok", rec.resends}
`

var (
	verifyPendingLua = redis.NewScript(verifyPendingScript)
	resendPendingLua = redis.NewScript(resendPendingScript)
)

type redisPendingStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPendingStore(client redis.UniversalClient) PendingRegistrationStore {
	return &redisPendingStore{
		client: client,
		prefix: "pending_signup:",
	}
}

func (s *redisPendingStore) key(email string) string {
	return s.prefix + normalizeEmail(email)
}

func (s *redisPendingStore) Create(ctx context.Context, pending domain.PendingRegistration, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := s.client.SetNX(ctx, s.key(pending.Email), payload, ttl).Result()
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return ErrPendingExists
	}
	return nil
}

func (s *redisPendingStore) Get(ctx context.Context, email string) (domain.PendingRegistration, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	data, err := s.client.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.PendingRegistration{}, ErrNoPendingRegistration
		}
		return domain.PendingRegistration{}, storeErr(err)
	}
	var pending domain.PendingRegistration
	if err := json.Unmarshal(data, &pending); err != nil {
		return domain.PendingRegistration{}, err
	}
	return pending, nil
}

func (s *redisPendingStore) Verify(ctx context.Context, email, codeHash string, maxAttempts int) (domain.PendingRegistration, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	res, err := verifyPendingLua.Run(ctx, s.client, []string{s.key(email)}, codeHash, maxAttempts).Slice()
	if err != nil {
		return domain.PendingRegistration{}, storeErr(err)
	}
	if len(res) == 0 {
		return domain.PendingRegistration{}, storeErr(errors.New("empty script reply"))
	}
	status, _ := res[0].(string)
	switch status {
	case "ok":
		raw, _ := res[1].(string)
		var pending domain.PendingRegistration
		if err := json.Unmarshal([]byte(raw), &pending); err != nil {
			return domain.PendingRegistration{}, err
		}
		return pending, nil
	case "not_found":
		return domain.PendingRegistration{}, ErrNoPendingRegistration
	case "exhausted":
		return domain.PendingRegistration{}, ErrTooManyAttempts
	case "invalid":
		remaining, _ := res[1].(int64)
		return domain.PendingRegistration{}, &InvalidCodeError{Remaining: int(remaining)}
	default:
		return domain.PendingRegistration{}, storeErr(errors.New("unexpected script reply " + status))
	}
}

func (s *redisPendingStore) Resend(ctx context.Context, email, newCodeHash string, maxResends int, ttl time.Duration, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	seconds := int(ttl.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	res, err := resendPendingLua.Run(ctx, s.client, []string{s.key(email)},
		newCodeHash, maxResends, seconds, now.UTC().Format(time.RFC3339Nano)).Slice()
	if err != nil {
		return 0, storeErr(err)
	}
	if len(res) == 0 {
		return 0, storeErr(errors.New("empty script reply"))
	}
	status, _ := res[0].(string)
	switch status {
	case "ok":
		n, _ := res[1].(int64)
		return int(n), nil
	case "not_found":
		return 0, ErrNoPendingRegistration
	case "limit":
		return 0, ErrResendLimitExceeded
	default:
		return 0, storeErr(errors.New("unexpected script reply " + status))
	}
}

func (s *redisPendingStore) Delete(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}
