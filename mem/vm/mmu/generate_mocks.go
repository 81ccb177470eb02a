//go:generate mockgen -destination=mock_pagefaulthandler.go -package=mmu github.com/leidenuniv/pagetables/mem/vm/mmu PageFaultHandler

package mmu
