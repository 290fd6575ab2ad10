package ledger

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"blockproof/internal/apperr"
	"blockproof/internal/config"
	"blockproof/internal/model"
)

// Chaincode transaction names of the certificate contract.
const (
	txStoreCertificate  = "StoreCertificate"
	txReadCertificate   = "ReadCertificate"
	txRevokeCertificate = "RevokeCertificate"
)

// chaincode abstracts the gateway contract so the ledger logic can be tested
// without a peer.
type chaincode interface {
	Submit(ctx context.Context, fn string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
}

type gatewayContract struct {
	contract *client.Contract
}

func (g gatewayContract) Submit(ctx context.Context, fn string, args ...string) ([]byte, error) {
	return g.contract.SubmitWithContext(ctx, fn, client.WithArguments(args...))
}

func (g gatewayContract) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	return g.contract.EvaluateWithContext(ctx, fn, client.WithArguments(args...))
}

// FabricLedger stores certificates through a Hyperledger Fabric gateway peer.
// The chaincode owns duplicate detection and single revocation; this client
// maps its errors onto the ledger contract.
type FabricLedger struct {
	contract chaincode
	gw       *client.Gateway
	conn     *grpc.ClientConn
	target   string
	now      func() time.Time
	logger   *zap.Logger
}

// NewFabricLedger connects to the gateway peer described by cfg.
func NewFabricLedger(ctx context.Context, cfg config.FabricConfig, logger *zap.Logger) (*FabricLedger, error) {
	conn, err := newGRPCConnection(cfg)
	if err != nil {
		return nil, err
	}

	id, err := newIdentity(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sign, err := newSign(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(1*time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)

	logger.Info("connected to fabric gateway",
		zap.String("peer", cfg.PeerEndpoint),
		zap.String("channel", cfg.Channel),
		zap.String("chaincode", cfg.Chaincode))

	l := newFabricLedger(gatewayContract{contract: contract}, cfg.PeerEndpoint, logger)
	l.gw = gw
	l.conn = conn
	return l, nil
}

func newFabricLedger(contract chaincode, target string, logger *zap.Logger) *FabricLedger {
	return &FabricLedger{
		contract: contract,
		target:   target,
		now:      time.Now,
		logger:   logger,
	}
}

func (l *FabricLedger) Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	stored := record.Clone()
	stored.Revoked = false
	stored.RevocationReason = ""
	stored.RevokedAt = nil
	stored.RecordedAt = l.now().UTC()
	stored.TxRef = ""

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certificate: %w", err)
	}

	if _, err := l.contract.Submit(ctx, txStoreCertificate, stored.ID, string(payload)); err != nil {
		l.logger.Error("failed to submit certificate", zap.Error(err), zap.String("certificate_id", stored.ID))
		return nil, l.classify(err, stored.ID)
	}

	return &model.Receipt{
		CertificateID: stored.ID,
		RecordedAt:    stored.RecordedAt,
	}, nil
}

func (l *FabricLedger) Lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	result, err := l.contract.Evaluate(ctx, txReadCertificate, id)
	if err != nil {
		return nil, l.classify(err, id)
	}
	if len(result) == 0 {
		return nil, notFound(id)
	}

	var record model.CertificateRecord
	if err := json.Unmarshal(result, &record); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "failed to parse certificate from chaincode")
	}
	if !record.Revoked {
		record.RevocationReason = ""
		record.RevokedAt = nil
	}
	return &record, nil
}

func (l *FabricLedger) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	reason = revocationReason(reason)
	revokedAt := l.now().UTC()

	_, err := l.contract.Submit(ctx, txRevokeCertificate, id, reason, revokedAt.Format(time.RFC3339Nano))
	if err == nil {
		return &model.RevocationReceipt{
			CertificateID: id,
			Revoked:       true,
			Reason:        reason,
			RevokedAt:     revokedAt,
		}, nil
	}

	if !strings.Contains(errorText(err), "already revoked") {
		l.logger.Error("failed to revoke certificate", zap.Error(err), zap.String("certificate_id", id))
		return nil, l.classify(err, id)
	}

	existing, err := l.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return alreadyRevoked(existing)
}

func (l *FabricLedger) Status(ctx context.Context) model.ServiceStatus {
	status := model.ServiceStatus{Driver: "fabric", Mode: model.ModeReal, Healthy: true}
	if l.conn != nil {
		state := l.conn.GetState().String()
		if state == "TRANSIENT_FAILURE" || state == "SHUTDOWN" {
			status.Healthy = false
			status.Error = fmt.Sprintf("gateway connection to %s is %s", l.target, state)
		}
	}
	return status
}

func (l *FabricLedger) Close() error {
	if l.gw != nil {
		l.gw.Close()
	}
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// classify maps chaincode rejections onto ledger error kinds. Anything the
// chaincode did not explicitly reject is treated as the ledger being down.
func (l *FabricLedger) classify(err error, id string) error {
	text := errorText(err)
	switch {
	case strings.Contains(text, "does not exist"):
		return notFound(id)
	case strings.Contains(text, "already exists"):
		return duplicate(id)
	default:
		return apperr.Wrap(apperr.KindUnavailable, err, "fabric gateway call failed")
	}
}

// errorText collects the error message and any per-peer details attached to
// a gateway gRPC status.
func errorText(err error) string {
	parts := []string{err.Error()}
	if st, ok := status.FromError(err); ok {
		for _, detail := range st.Details() {
			if d, ok := detail.(*gateway.ErrorDetail); ok {
				parts = append(parts, d.GetMessage())
			}
		}
	}
	return strings.Join(parts, "; ")
}

func newGRPCConnection(cfg config.FabricConfig) (*grpc.ClientConn, error) {
	certificatePEM, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate file: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certificatePEM) {
		return nil, fmt.Errorf("failed to add TLS certificate to pool")
	}
	transportCredentials := credentials.NewClientTLSFromCert(certPool, cfg.GatewayPeer)

	conn, err := grpc.NewClient(cfg.PeerEndpoint, grpc.WithTransportCredentials(transportCredentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

func newIdentity(cfg config.FabricConfig) (*identity.X509Identity, error) {
	certificatePEM, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	certificate, err := identity.CertificateFromPEM(certificatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	id, err := identity.NewX509Identity(cfg.MSPID, certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return id, nil
}

func newSign(cfg config.FabricConfig) (identity.Sign, error) {
	privateKeyPEM, err := readPrivateKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	privateKey, err := identity.PrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	sign, err := identity.NewPrivateKeySign(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create sign: %w", err)
	}
	return sign, nil
}

// readPrivateKey accepts either a key file or an MSP keystore directory, in
// which case the first file is used.
func readPrivateKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat private key path: %w", err)
	}

	if info.IsDir() {
		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key directory: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no private key found in directory %s", path)
		}
		path = filepath.Join(path, files[0].Name())
	}

	privateKeyPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return privateKeyPEM, nil
}
