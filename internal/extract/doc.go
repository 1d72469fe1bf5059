// Package extract turns fetched catalog pages into summary items, detail
// fields and child records.
//
// Movies handles the flat film catalog and Series the nested one, where a
// series page links to season pages and those list the episodes. Both are
// best effort: whatever could be read is returned together with a
// *model.ExtractionGap naming the fields that were missing. All text is
// whitespace-collapsed and NFC-normalized.
package extract
