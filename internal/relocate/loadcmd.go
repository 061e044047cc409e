package relocate

import "debug/macho"

// Mach-O load command constants not exported by debug/macho. Values match
// <mach-o/loader.h>.
const (
	lcIDDylib         macho.LoadCmd = 0xd
	lcLoadDylib       macho.LoadCmd = 0xc
	lcLoadWeakDylib   macho.LoadCmd = 0x80000018
	lcReexportDylib   macho.LoadCmd = 0x8000001f
	lcLoadUpwardDylib macho.LoadCmd = 0x80000023
	lcLazyLoadDylib   macho.LoadCmd = 0x20
	lcPreboundDylib   macho.LoadCmd = 0x10
	lcRpath           macho.LoadCmd = 0x8000001c
)
