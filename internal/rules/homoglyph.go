package rules

// Cyrillic and Greek letters that render like Latin ones in the game font.
var homoglyphs = map[rune]string{
	// Cyrillic lower case
	'а': "a", 'в': "b", 'г': "r", 'е': "e", 'ё': "e", 'к': "k", 'м': "m",
	'н': "h", 'о': "o", 'п': "n", 'р': "p", 'с': "c", 'т': "t", 'у': "y",
	'х': "x", 'ь': "b", 'ѕ': "s", 'і': "i", 'ї': "i", 'ј': "j", 'ԁ': "d",
	'ӏ': "l", 'ԛ': "q", 'ԝ': "w", 'ү': "y", 'һ': "h",
	// Cyrillic upper case
	'А': "A", 'В': "B", 'Е': "E", 'Ё': "E", 'К': "K", 'М': "M", 'Н': "H",
	'О': "O", 'Р': "P", 'С': "C", 'Т': "T", 'У': "Y", 'Х': "X", 'Ѕ': "S",
	'І': "I", 'Ј': "J",
	// Greek
	'α': "a", 'ε': "e", 'ι': "i", 'κ': "k", 'ν': "v", 'ο': "o", 'ρ': "p",
	'τ': "t", 'υ': "u", 'χ': "x",
	'Α': "A", 'Β': "B", 'Ε': "E", 'Ζ': "Z", 'Η': "H", 'Ι': "I", 'Κ': "K",
	'Μ': "M", 'Ν': "N", 'Ο': "O", 'Ρ': "P", 'Τ': "T", 'Υ': "Y", 'Χ': "X",
}
