// Command smoke drives one full record-sharing round against a running
// carevaultd: writes over gRPC, doctor reads over HTTP.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"carevault.org/internal/auth"
	"carevault.org/internal/config"
	"carevault.org/internal/contentstore"
	"carevault.org/internal/keywrap"
	"carevault.org/internal/ledger"
	"carevault.org/internal/obs"
	"carevault.org/internal/sharing"
	"carevault.org/internal/submit"
	"carevault.org/internal/submit/remote"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (default $CAREVAULT_CONFIG)")
		grpcTarget = flag.String("grpc", "localhost:9090", "carevaultd gRPC address")
		httpBase   = flag.String("http", "http://localhost:8080", "carevaultd HTTP base URL")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall deadline")
	)
	flag.Parse()

	log := obs.Logger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, log, cfg, *grpcTarget, strings.TrimRight(*httpBase, "/")); err != nil {
		log.WithError(err).Fatal("smoke failed")
	}
	log.Info("smoke passed")
}

func run(ctx context.Context, log *logrus.Logger, cfg config.Config, target, base string) error {
	tokens, err := auth.New(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTTL(cfg.Auth.TTL))
	if err != nil {
		return err
	}
	issue := func(caller ledger.Address) (string, error) {
		tok, _, err := tokens.Issue(string(caller))
		return tok, err
	}

	store, err := openContentStore(ctx, cfg.ContentStore)
	if err != nil {
		return fmt.Errorf("content store: %w", err)
	}

	client, err := remote.Dial(target, issue)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()

	patient, err := newDevice(store)
	if err != nil {
		return err
	}
	doctor, err := newDevice(store)
	if err != nil {
		return err
	}
	admin := ledger.Address(cfg.Administrator)
	log.WithFields(logrus.Fields{"patient": patient.Address(), "doctor": doctor.Address()}).Info("identities_generated")

	profile, err := store.Put(ctx, []byte(`{"name":"smoke patient"}`))
	if err != nil {
		return err
	}
	if _, err := submitOp(ctx, client, patient.Address(), submit.OpRegisterPatient, submit.ProfileArgs{ProfileDigest: ledger.Digest(profile)}); err != nil {
		return fmt.Errorf("register patient: %w", err)
	}
	if _, err := submitOp(ctx, client, doctor.Address(), submit.OpRegisterDoctor, submit.DoctorArgs{ProfileDigest: ledger.Digest(profile), LicenseRef: "SMOKE-0001"}); err != nil {
		return fmt.Errorf("register doctor: %w", err)
	}
	if _, err := submitOp(ctx, client, admin, submit.OpVerifyDoctor, submit.DoctorStatusArgs{Doctor: doctor.Address()}); err != nil {
		return fmt.Errorf("verify doctor: %w", err)
	}

	plaintext := []byte("hemoglobin 14.1 g/dL, " + time.Now().UTC().Format(time.RFC3339))
	sealed, err := patient.Seal(ctx, plaintext)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	rcpt, err := submitOp(ctx, client, patient.Address(), submit.OpAddRecord, sealed.Record(patient.Address(), ledger.RecordLabResult, "smoke lab result"))
	if err != nil {
		return fmt.Errorf("add record: %w", err)
	}
	var rec submit.RecordResult
	if err := rcpt.Decode(&rec); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"record_id": rec.RecordID, "seq": rcpt.Seq}).Info("record_added")

	rcpt, err = submitOp(ctx, client, doctor.Address(), submit.OpRequestAccess, submit.RequestAccessArgs{RecordID: rec.RecordID, Reason: "smoke consult"})
	if err != nil {
		return fmt.Errorf("request access: %w", err)
	}
	var acc submit.AccessResult
	if err := rcpt.Decode(&acc); err != nil {
		return err
	}

	wrapped, err := patient.RewrapFor(ctx, sealed.OwnerKeyDigest, doctor.Address())
	if err != nil {
		return fmt.Errorf("rewrap: %w", err)
	}
	if _, err := submitOp(ctx, client, patient.Address(), submit.OpGrantAccess, submit.GrantAccessArgs{AccessID: acc.AccessID, WrappedKeyDigest: wrapped, DurationDays: 30}); err != nil {
		return fmt.Errorf("grant access: %w", err)
	}
	log.WithField("access_id", acc.AccessID).Info("access_granted")

	src := &httpKeySource{base: base, client: &http.Client{Timeout: 10 * time.Second}, token: issue, caller: doctor.Address()}
	opened, err := doctor.OpenGranted(ctx, src, rec.RecordID)
	if err != nil {
		return fmt.Errorf("doctor open: %w", err)
	}
	if !bytes.Equal(opened, plaintext) {
		return errors.New("doctor read different plaintext")
	}
	log.Info("doctor_read_verified")

	if _, err := submitOp(ctx, client, patient.Address(), submit.OpRevokeAccess, submit.AccessArgs{AccessID: acc.AccessID}); err != nil {
		return fmt.Errorf("revoke access: %w", err)
	}
	if _, err := doctor.OpenGranted(ctx, src, rec.RecordID); !errors.Is(err, sharing.ErrNoAccess) {
		return fmt.Errorf("expected no access after revoke, got %v", err)
	}
	log.Info("revocation_verified")
	return nil
}

func submitOp(ctx context.Context, s submit.Submitter, caller ledger.Address, name string, args any) (submit.Receipt, error) {
	op, err := submit.NewOperation(name, args)
	if err != nil {
		return submit.Receipt{}, err
	}
	return s.Submit(ctx, caller, op)
}

func newDevice(store contentstore.Store) (*sharing.Device, error) {
	kp, err := keywrap.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return sharing.NewDevice(kp, store), nil
}

// openContentStore must point at the same blobs the patient wrote; the
// memory driver only works because both devices live in this process.
func openContentStore(ctx context.Context, cfg config.ContentStore) (contentstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return contentstore.NewMemory(), nil
	case "s3":
		return contentstore.NewS3(ctx, contentstore.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// httpKeySource reads record metadata and key digests as one caller.
type httpKeySource struct {
	base   string
	client *http.Client
	token  remote.TokenSource
	caller ledger.Address
}

func (s *httpKeySource) GetEncryptedKeyDigest(caller ledger.Address, id ledger.RecordID) (ledger.Digest, error) {
	var out struct {
		EncryptedKeyDigest ledger.Digest `json:"encrypted_key_digest"`
	}
	if err := s.get(caller, fmt.Sprintf("/v1/records/%d/key", id), &out); err != nil {
		return "", err
	}
	return out.EncryptedKeyDigest, nil
}

func (s *httpKeySource) GetRecord(id ledger.RecordID) (ledger.Record, error) {
	var rec ledger.Record
	err := s.get(s.caller, fmt.Sprintf("/v1/records/%d", id), &rec)
	return rec, err
}

func (s *httpKeySource) get(caller ledger.Address, path string, dst any) error {
	tok, err := s.token(caller)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if sentinel, ok := ledger.FromCode(body.Code); ok {
			return fmt.Errorf("GET %s: %w", path, sentinel)
		}
		return fmt.Errorf("GET %s: %s %s", path, resp.Status, body.Error)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

var _ sharing.KeySource = (*httpKeySource)(nil)
