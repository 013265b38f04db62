package chain_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/recurpay/internal/authority"
	"github.com/frahmantamala/recurpay/internal/chain"
	"github.com/frahmantamala/recurpay/internal/chain/chaintest"
)

var _ = Describe("Transaction", func() {
	var (
		delegate *authority.Authority
		owner    *authority.Authority
		block    chain.BlockReference
		mint     string
	)

	BeforeEach(func() {
		var err error
		delegate, err = authority.Generate()
		Expect(err).NotTo(HaveOccurred())
		owner, err = authority.Generate()
		Expect(err).NotTo(HaveOccurred())
		block = chain.BlockReference{Hash: chaintest.RandomAddress()}
		mint = chaintest.RandomAddress()
	})

	It("lists the fee payer first and de-duplicates signers", func() {
		tx := chain.NewTransaction(delegate.Address(), block,
			chain.TransferChecked(chaintest.RandomAddress(), mint, chaintest.RandomAddress(), delegate.Address(), 10, 6),
			chain.TransferChecked(chaintest.RandomAddress(), mint, chaintest.RandomAddress(), owner.Address(), 5, 6),
		)

		Expect(tx.RequiredSigners()).To(Equal([]string{delegate.Address(), owner.Address()}))
	})

	It("is fully signed only when every signer has signed", func() {
		tx := chain.NewTransaction(delegate.Address(), block,
			chain.TransferChecked(chaintest.RandomAddress(), mint, chaintest.RandomAddress(), owner.Address(), 5, 6),
		)

		Expect(tx.Sign(delegate)).To(Succeed())
		Expect(tx.IsFullySigned()).To(BeFalse())
		Expect(tx.ID()).NotTo(BeEmpty())

		Expect(tx.Sign(owner)).To(Succeed())
		Expect(tx.IsFullySigned()).To(BeTrue())
		Expect(tx.VerifySignatures()).To(Succeed())
	})

	It("refuses signers the transaction does not require", func() {
		tx := chain.NewTransaction(delegate.Address(), block, chain.SetComputeUnitLimit(chain.DefaultComputeUnits))
		Expect(tx.Sign(owner)).To(MatchError(chain.ErrNotASigner))
	})

	It("detects tampering after signing", func() {
		tx := chain.NewTransaction(delegate.Address(), block,
			chain.TransferChecked(chaintest.RandomAddress(), mint, chaintest.RandomAddress(), delegate.Address(), 10, 6),
		)
		Expect(tx.Sign(delegate)).To(Succeed())

		tx.Instructions[0].Amount = 10_000
		Expect(tx.VerifySignatures()).To(MatchError(chain.ErrInvalidSignature))
	})

	It("round-trips through the wire encoding", func() {
		tx := chain.NewTransaction(delegate.Address(), block,
			chain.SetComputeUnitPrice(42),
			chain.Revoke(chaintest.RandomAddress(), delegate.Address()),
		)
		Expect(tx.Sign(delegate)).To(Succeed())

		encoded, err := tx.Encode()
		Expect(err).NotTo(HaveOccurred())

		decoded, err := chain.Decode(encoded)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.ID()).To(Equal(tx.ID()))
		Expect(decoded.VerifySignatures()).To(Succeed())
	})
})

var _ = Describe("helpers", func() {
	It("derives a stable token account address", func() {
		owner, mint := chaintest.RandomAddress(), chaintest.RandomAddress()

		a, err := chain.TokenAccountAddress(owner, mint)
		Expect(err).NotTo(HaveOccurred())
		b, err := chain.TokenAccountAddress(owner, mint)
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(Equal(b))
		Expect(chain.ValidateAddress(a)).To(Succeed())
	})

	It("rejects malformed addresses and signatures", func() {
		Expect(chain.ValidateAddress("not-base58-0OIl")).To(MatchError(chain.ErrInvalidAddress))
		Expect(chain.ValidateSignature(chaintest.RandomAddress())).To(MatchError(chain.ErrInvalidSignature))
		Expect(chain.ValidateSignature(chaintest.RandomSignature())).To(Succeed())
	})

	It("prices the network fee from signatures and priority fee", func() {
		Expect(chain.NetworkFee(1, 200_000, 10_000)).To(Equal(int64(5000 + 2000)))
		Expect(chain.NetworkFee(2, 200_000, 0)).To(Equal(int64(10_000)))
	})
})
