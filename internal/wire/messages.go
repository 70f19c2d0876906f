package wire

// ClientID is the 64-bit opaque identity of one client VM, stable for
// its lifetime (spec.md §3).
type ClientID uint64

// SeqNo is a client-assigned, per-session monotonically increasing
// request sequence number (spec.md §3).
type SeqNo uint32

// ClassHandle and MethodHandle are opaque, per-session-stable handles
// the client VM uses to refer to its own classes/methods.
type ClassHandle uint64
type MethodHandle uint64

// CHTableModification is one flattened PersistentClassInfo entry sent
// by the client as part of a critical request's class-hierarchy delta
// (spec.md §4.E).
type CHTableModification struct {
	Class         ClassHandle   `json:"class"`
	SuperClass    ClassHandle   `json:"super_class"`
	SubClasses    []ClassHandle `json:"sub_classes"`
	Flags         uint32        `json:"flags"`
}

// UnloadedClassesSentinel, when present in CompilationRequest.Unloads,
// means "clear every cache" (HCR/hot-code-replace full invalidation),
// per spec.md §4.E.
const UnloadedClassesSentinel ClassHandle = 0

// CompilationRequest is the primary client → server request
// (spec.md §3, §4.G).
type CompilationRequest struct {
	ClientID      ClientID     `json:"client_id"`
	SeqNo         SeqNo        `json:"seq_no"`
	CriticalSeqNo SeqNo        `json:"critical_seq_no"`

	Method ClassMethodRef `json:"method"`
	Class  ClassHandle    `json:"class"`

	OptimizationPlan string `json:"optimization_plan"`
	UseAotCompilation bool  `json:"use_aot_compilation"`
	IsAotCacheStore   bool  `json:"is_aot_cache_store"`
	IsAotCacheLoad    bool  `json:"is_aot_cache_load"`

	// Reconcile inputs (spec.md §4.E).
	Unloads               []ClassHandle          `json:"unloads,omitempty"`
	IllegalFinalFieldMods []ClassHandle          `json:"illegal_final_field_mods,omitempty"`
	CHTableRemoves        []ClassHandle          `json:"ch_table_removes,omitempty"`
	CHTableMods           []CHTableModification  `json:"ch_table_mods,omitempty"`
}

// ClassMethodRef identifies one method within one class by handle.
type ClassMethodRef struct {
	Method MethodHandle `json:"method"`
	Class  ClassHandle  `json:"class"`
	Index  int          `json:"index"`
	OptLevel string     `json:"opt_level"`
}

// IsCritical reports whether this request must be ordered relative to
// other critical requests (spec.md §4.D, §4.G step 2).
func (r *CompilationRequest) IsCritical() bool {
	return len(r.Unloads) > 0 || len(r.IllegalFinalFieldMods) > 0 ||
		len(r.CHTableRemoves) > 0 || len(r.CHTableMods) > 0
}

// CompilationCode is the success reply (spec.md §4.G step 9, §6).
type CompilationCode struct {
	Code                   []byte      `json:"code"`
	Data                   []byte      `json:"data"`
	CHTableCommitData      []byte      `json:"ch_table_commit_data,omitempty"`
	ClassesNotToBeExtended []ClassHandle `json:"classes_not_to_be_extended,omitempty"`
	SerializedAssumptions  []byte      `json:"serialized_assumptions,omitempty"`
	MethodsNeedingTrampolines []MethodHandle `json:"methods_needing_trampolines,omitempty"`
	Health HealthTags `json:"health"`
}

// CompilationFailure is the error reply (spec.md §6, §7).
type CompilationFailure struct {
	Status StatusCode  `json:"status"`
	Health *HealthTags `json:"health,omitempty"`
}

// ClientSessionTerminate carries the client id whose session should be
// torn down (spec.md §6).
type ClientSessionTerminate struct {
	ClientID ClientID `json:"client_id"`
}

// GetUnloadedClassRangesAndCHTableRequest is sent server → client to
// request a full session-init snapshot after a cache clear
// (spec.md §4.G step 5).
type GetUnloadedClassRangesAndCHTableRequest struct {
	ClientID ClientID `json:"client_id"`
}

// GetUnloadedClassRangesAndCHTableReply is the client's answer.
type GetUnloadedClassRangesAndCHTableReply struct {
	UnloadedAddressRanges [][2]uint64           `json:"unloaded_address_ranges"`
	CHTableMods           []CHTableModification `json:"ch_table_mods"`
}

// SharedCacheGetROMClassRequest is a lazy fetch for one class's ROM
// class data (spec.md §4.E "Lazy fetch").
type SharedCacheGetROMClassRequest struct {
	Class ClassHandle `json:"class"`
}

// SharedCacheGetROMClassReply carries the fetched data, or Empty=true
// if the client has no information (spec.md §7 LazyFetchReturnedEmpty).
type SharedCacheGetROMClassReply struct {
	Empty       bool   `json:"empty"`
	RomClass    []byte `json:"rom_class,omitempty"`
	Signature   string `json:"signature,omitempty"`
	LoaderID    uint64 `json:"loader_id,omitempty"`
}

// SharedCacheGetClassChainRequest is a lazy fetch for a class's class
// chain data.
type SharedCacheGetClassChainRequest struct {
	Class ClassHandle `json:"class"`
}

// SharedCacheGetClassChainReply carries the fetched class chain.
type SharedCacheGetClassChainReply struct {
	Empty bool     `json:"empty"`
	Chain []uint64 `json:"chain,omitempty"`
}

// AOTCacheMapReply / AOTCacheSerializedAOTMethod / AOTCacheFailure are
// the AOT-cache-specific server → client replies (spec.md §6).
type AOTCacheMapReply struct {
	KnownIDs map[string][]uint64 `json:"known_ids"` // record type -> ids the client now knows
}

type AOTCacheSerializedAOTMethod struct {
	SerializedMethod []byte              `json:"serialized_method"`
	NewRecords       map[string][]byte   `json:"new_records"` // records the client doesn't have yet, keyed by "type:id"
	Health           HealthTags          `json:"health"`
}

type AOTCacheFailure struct {
	Reason string `json:"reason"`
}
