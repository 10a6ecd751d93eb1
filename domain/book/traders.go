package book

// registerTrader resolves an owner address to its compact trader id,
// allocating the next id on first sight. Ids are 1-based; zero means
// unknown.
func (b *Book) registerTrader(addr Address) (uint64, error) {
	id, err := b.store.TraderID(addr)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	seq, err := b.store.TraderSeq()
	if err != nil {
		return 0, err
	}
	id = seq + 1
	if err := b.store.PutTrader(addr, id); err != nil {
		return 0, err
	}
	if err := b.store.PutTraderSeq(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ownerOf resolves a compact trader id back to its address. Trader
// zero resolves to the zero address.
func (b *Book) ownerOf(trader uint64) (Address, error) {
	if trader == 0 {
		return Address{}, nil
	}
	return b.store.TraderAddress(trader)
}
