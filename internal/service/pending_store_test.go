package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JokanderTest/CVX/internal/domain"
)

func newPendingRecord(code string) domain.PendingRegistration {
	return domain.PendingRegistration{
		Email:        "ana@example.com",
		Name:         "Ana",
		PasswordHash: "$2a$10$hashficticio",
		CodeHash:     HashCode(code),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPendingStoreCreateIsExclusive(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}
	err := store.Create(ctx, newPendingRecord("654321"), 15*time.Minute)
	if !errors.Is(err, ErrPendingExists) {
		t.Fatalf("esperaba ErrPendingExists, obtuve %v", err)
	}

	// El registro original sigue intacto.
	pending, err := store.Get(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("Get fallo: %v", err)
	}
	if pending.CodeHash != HashCode("123456") {
		t.Fatalf("el segundo Create no deberia pisar el codigo original")
	}
}

func TestPendingStoreVerifyHappyPath(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}

	pending, err := store.Verify(ctx, "ana@example.com", HashCode("123456"), 5)
	if err != nil {
		t.Fatalf("Verify fallo: %v", err)
	}
	if pending.Email != "ana@example.com" || pending.Name != "Ana" {
		t.Fatalf("registro devuelto incompleto: %+v", pending)
	}

	// El consumo correcto borra el registro: el mismo codigo no sirve dos veces.
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("123456"), 5); !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("esperaba ErrNoPendingRegistration tras consumir, obtuve %v", err)
	}
}

func TestPendingStoreVerifyWrongCode(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}

	var invalid *InvalidCodeError
	_, err := store.Verify(ctx, "ana@example.com", HashCode("000000"), 5)
	if !errors.As(err, &invalid) {
		t.Fatalf("esperaba InvalidCodeError, obtuve %v", err)
	}
	if invalid.Remaining != 4 {
		t.Fatalf("esperaba 4 intentos restantes, obtuve %d", invalid.Remaining)
	}

	// El codigo correcto sigue funcionando despues de un fallo.
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("123456"), 5); err != nil {
		t.Fatalf("Verify con codigo correcto fallo: %v", err)
	}
}

func TestPendingStoreVerifyExhaustsAttempts(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}

	for i := 0; i < 4; i++ {
		var invalid *InvalidCodeError
		_, err := store.Verify(ctx, "ana@example.com", HashCode("000000"), 5)
		if !errors.As(err, &invalid) {
			t.Fatalf("fallo %d: esperaba InvalidCodeError, obtuve %v", i+1, err)
		}
		if invalid.Remaining != 4-i {
			t.Fatalf("fallo %d: esperaba %d restantes, obtuve %d", i+1, 4-i, invalid.Remaining)
		}
	}

	// El quinto fallo agota el registro y lo elimina.
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("000000"), 5); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("esperaba ErrTooManyAttempts, obtuve %v", err)
	}
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("123456"), 5); !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("un registro agotado deberia desaparecer, obtuve %v", err)
	}

	// Un alta nueva arranca desde cero.
	if err := store.Create(ctx, newPendingRecord("777777"), 15*time.Minute); err != nil {
		t.Fatalf("Create tras agotar fallo: %v", err)
	}
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("777777"), 5); err != nil {
		t.Fatalf("Verify del alta nueva fallo: %v", err)
	}
}

func TestPendingStoreVerifyMissing(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	if _, err := store.Verify(context.Background(), "nadie@example.com", HashCode("123456"), 5); !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("esperaba ErrNoPendingRegistration, obtuve %v", err)
	}
}

func TestPendingStoreExpires(t *testing.T) {
	mr, client := newTestRedisWithServer(t)
	store := NewRedisPendingStore(client)
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}
	mr.FastForward(61 * time.Second)

	if _, err := store.Verify(ctx, "ana@example.com", HashCode("123456"), 5); !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("un registro vencido deberia desaparecer, obtuve %v", err)
	}
}

func TestPendingStoreResend(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}

	// Quemamos un intento antes del reenvio.
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("000000"), 5); err == nil {
		t.Fatalf("esperaba error con codigo incorrecto")
	}

	n, err := store.Resend(ctx, "ana@example.com", HashCode("654321"), 3, 15*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("Resend fallo: %v", err)
	}
	if n != 1 {
		t.Fatalf("esperaba contador de reenvios 1, obtuve %d", n)
	}

	// El codigo viejo queda invalidado y los intentos vuelven a cero.
	var invalid *InvalidCodeError
	_, err = store.Verify(ctx, "ana@example.com", HashCode("123456"), 5)
	if !errors.As(err, &invalid) {
		t.Fatalf("el codigo anterior deberia ser invalido, obtuve %v", err)
	}
	if invalid.Remaining != 4 {
		t.Fatalf("el reenvio deberia resetear intentos: restantes %d", invalid.Remaining)
	}
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("654321"), 5); err != nil {
		t.Fatalf("el codigo nuevo deberia funcionar: %v", err)
	}
}

func TestPendingStoreResendLimit(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRecord("123456"), 15*time.Minute); err != nil {
		t.Fatalf("Create fallo: %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := store.Resend(ctx, "ana@example.com", HashCode("654321"), 3, 15*time.Minute, time.Now())
		if err != nil {
			t.Fatalf("reenvio %d fallo: %v", i, err)
		}
		if n != i {
			t.Fatalf("reenvio %d devolvio contador %d", i, n)
		}
	}

	if _, err := store.Resend(ctx, "ana@example.com", HashCode("999999"), 3, 15*time.Minute, time.Now()); !errors.Is(err, ErrResendLimitExceeded) {
		t.Fatalf("esperaba ErrResendLimitExceeded, obtuve %v", err)
	}

	// El registro sigue vivo: el ultimo codigo reenviado aun verifica.
	if _, err := store.Verify(ctx, "ana@example.com", HashCode("654321"), 5); err != nil {
		t.Fatalf("Verify tras tope de reenvios fallo: %v", err)
	}
}

func TestPendingStoreResendMissing(t *testing.T) {
	store := NewRedisPendingStore(newTestRedis(t))
	if _, err := store.Resend(context.Background(), "nadie@example.com", HashCode("123456"), 3, time.Minute, time.Now()); !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("esperaba ErrNoPendingRegistration, obtuve %v", err)
	}
}
