package ledger

import (
	"blockproof/internal/apperr"
	"blockproof/internal/model"
	"blockproof/types"
)

func rowToRecord(row *types.CertificateRow) *model.CertificateRecord {
	record := &model.CertificateRecord{
		ID:             row.ID,
		ContentHash:    row.ContentHash,
		Issuer:         row.Issuer,
		Recipient:      row.Recipient,
		Course:         row.Course,
		IssueDate:      row.IssueDate,
		AdditionalInfo: row.AdditionalInfo,
		Revoked:        row.Revoked,
		RecordedAt:     row.RecordedAt.UTC(),
		TxRef:          row.TxRef,
	}
	if row.Revoked {
		if row.RevocationReason != nil {
			record.RevocationReason = *row.RevocationReason
		}
		if row.RevokedAt != nil {
			t := row.RevokedAt.UTC()
			record.RevokedAt = &t
		}
	}
	return record
}

// alreadyRevoked builds the receipt for a revoke call whose update matched no
// row. The record must be revoked by now; anything else means the write was
// lost and is reported as unavailable.
func alreadyRevoked(record *model.CertificateRecord) (*model.RevocationReceipt, error) {
	if !record.Revoked {
		return nil, apperr.New(apperr.KindUnavailable, "revocation of %s was not applied", record.ID)
	}
	receipt := &model.RevocationReceipt{
		CertificateID:  record.ID,
		Revoked:        true,
		Reason:         record.RevocationReason,
		AlreadyRevoked: true,
	}
	if record.RevokedAt != nil {
		receipt.RevokedAt = *record.RevokedAt
	}
	return receipt, nil
}
